package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Waaajid/chatbotwiteditrequests/internal/config"
	"github.com/Waaajid/chatbotwiteditrequests/internal/db"
	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/llm"
	"github.com/Waaajid/chatbotwiteditrequests/internal/logging"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mcp"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/metrics"
	"github.com/Waaajid/chatbotwiteditrequests/internal/ops"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
	"github.com/Waaajid/chatbotwiteditrequests/internal/web"
)

// newCLIApp creates the CLI application with all commands.
// baseDir holds config.json, melchat.db and the exports directory.
func newCLIApp(baseDir string, cfg *config.Config) *cli.App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	app := &cli.App{
		Name:    "melchat",
		Usage:   "Chat-driven crisis exercise MEL editor",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(baseDir, cfg),
			mcpCmd(baseDir, cfg),
			buildCmd(),
			mergeCmd(baseDir, cfg),
			sessionsCmd(baseDir, cfg),
			historyCmd(baseDir, cfg),
			exportCmd(baseDir, cfg),
			importCmd(baseDir, cfg),
			purgeCmd(baseDir, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// openStore returns the session backend and a function releasing it.
func openStore(baseDir string, cfg *config.Config, backend string) (session.Store, func(), error) {
	switch backend {
	case "", config.StoreMemory:
		return session.NewMemoryStore(), func() {}, nil
	case config.StoreSQLite:
		database, err := db.Init(baseDir)
		if err != nil {
			return nil, nil, err
		}
		db.ConfigurePool(database, cfg)
		return db.NewSessionStore(database), func() { database.Close() }, nil
	default:
		return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("unknown store %q (want memory or sqlite)", backend))
	}
}

// offlineDeps opens the SQLite store for commands that outlive a single process.
func offlineDeps(baseDir string, cfg *config.Config) (ops.Deps, func(), error) {
	store, closeFn, err := openStore(baseDir, cfg, config.StoreSQLite)
	if err != nil {
		return ops.Deps{}, nil, err
	}
	return ops.Deps{Sessions: store, Config: cfg}, closeFn, nil
}

// serveCmd creates the serve command.
func serveCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web editor and JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (default from config, 127.0.0.1)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (default from config, 8080)"},
			&cli.StringFlag{Name: "store", Usage: "Session store: memory|sqlite"},
			&cli.BoolFlag{Name: "debug", Usage: "Human-readable debug logging"},
		},
		Action: func(c *cli.Context) error {
			if bind := c.String("bind"); bind != "" {
				cfg.Bind = bind
			}
			if port := c.Int("port"); port > 0 {
				cfg.Port = port
			}
			if store := c.String("store"); store != "" {
				cfg.Store = store
			}
			if c.Bool("debug") {
				cfg.Debug = true
			}

			logger, err := logging.New(cfg.Debug)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			defer logger.Sync() //nolint:errcheck // stderr sync fails on some platforms

			store, closeStore, err := openStore(baseDir, cfg, cfg.Store)
			if err != nil {
				return outputError(err)
			}
			defer closeStore()

			if cfg.APIKey == "" {
				logger.Warn("no API key configured; chat requests must supply api_key",
					zap.String("env", config.EnvAPIKey))
			}

			deps := ops.Deps{
				Sessions: store,
				Config:   cfg,
				LLM:      llm.NewClient(cfg.BaseURL, time.Duration(cfg.UpstreamTimeoutSeconds)*time.Second),
				Metrics:  metrics.NewCollector("melchat"),
			}
			srv, err := web.NewServer(deps, logger, Version)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			logger.Info("starting",
				zap.String("version", Version),
				zap.String("store", cfg.Store),
				zap.String("model", cfg.Model),
			)
			return web.Run(c.Context, srv, logger)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MEL and session tools over MCP stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store", Value: config.StoreSQLite, Usage: "Session store: memory|sqlite"},
		},
		Action: func(c *cli.Context) error {
			logger, err := logging.New(cfg.Debug)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			defer logger.Sync() //nolint:errcheck // stderr sync fails on some platforms

			if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
				logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
			}
			if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
				logger.Warn("unknown types in disabled_types", zap.Strings("types", unknown))
			}

			store, closeStore, err := openStore(baseDir, cfg, c.String("store"))
			if err != nil {
				return outputError(err)
			}
			defer closeStore()

			return mcp.Run(ops.Deps{Sessions: store, Config: cfg}, logger, Version)
		},
	}
}

// buildCmd creates the build command.
func buildCmd() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build a MEL document from an inject list (reads JSON or YAML from stdin or --file)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Input file (.json, .yaml)"},
			&cli.StringFlag{Name: "format", Value: ops.FormatJSON, Usage: "Stdin format: json|yaml"},
			&cli.StringFlag{Name: "mel-id", Usage: "Keep this document id instead of minting one"},
		},
		Action: func(c *cli.Context) error {
			injects, _, err := readInjects(c)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, mel.Build(injects, c.String("mel-id")))
		},
	}
}

// mergeCmd creates the merge command.
func mergeCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "merge",
		Usage: "Merge or replace injects in a session without a model turn (reads stdin or --file)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session id (created if missing; minted if empty)"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "auto", Usage: "merge|replace|auto"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Input file (.json, .yaml)"},
			&cli.StringFlag{Name: "format", Value: ops.FormatJSON, Usage: "Stdin format: json|yaml"},
		},
		Action: func(c *cli.Context) error {
			injects, fileSession, err := readInjects(c)
			if err != nil {
				return outputError(err)
			}

			deps, closeFn, err := offlineDeps(baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer closeFn()

			sessionID := c.String("session")
			if sessionID == "" {
				sessionID = fileSession
			}
			output, err := ops.ApplyInjects(c.Context, deps, ops.ApplyInput{
				SessionID: sessionID,
				Mode:      c.String("mode"),
				Injects:   injects,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// sessionsCmd creates the sessions command group.
func sessionsCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List, show, or delete sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sessions, most recently active first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Results to skip"},
				},
				Action: func(c *cli.Context) error {
					deps, closeFn, err := offlineDeps(baseDir, cfg)
					if err != nil {
						return outputError(err)
					}
					defer closeFn()

					output, err := ops.ListSessions(c.Context, deps, ops.ListInput{
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "get",
				Usage:     "Show a session",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-history", Usage: "Omit version history"},
				},
				Action: func(c *cli.Context) error {
					deps, closeFn, err := offlineDeps(baseDir, cfg)
					if err != nil {
						return outputError(err)
					}
					defer closeFn()

					input := ops.GetInput{SessionID: c.Args().First()}
					if c.Bool("no-history") {
						includeHistory := false
						input.IncludeHistory = &includeHistory
					}
					output, err := ops.GetSession(c.Context, deps, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a session and its history",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					deps, closeFn, err := offlineDeps(baseDir, cfg)
					if err != nil {
						return outputError(err)
					}
					defer closeFn()

					output, err := ops.DeleteSession(c.Context, deps, ops.DeleteInput{SessionID: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
		},
	}
}

// historyCmd creates the history command.
func historyCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List a session's MEL versions",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "documents", Usage: "Include each version's full MEL"},
		},
		Action: func(c *cli.Context) error {
			deps, closeFn, err := offlineDeps(baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer closeFn()

			output, err := ops.History(c.Context, deps, ops.HistoryInput{
				SessionID:        c.Args().First(),
				IncludeDocuments: c.Bool("documents"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a session's current MEL to a JSON or YAML file",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Usage: "Output file path (default: ~/.melchat/exports/<session>-<timestamp>.<format>)"},
			&cli.StringFlag{Name: "format", Usage: "json|yaml (default: from path extension, else json)"},
		},
		Action: func(c *cli.Context) error {
			deps, closeFn, err := offlineDeps(baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer closeFn()

			output, err := ops.Export(c.Context, deps, ops.ExportInput{
				SessionID: c.Args().First(),
				Path:      c.String("path"),
				Format:    c.String("format"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Load a JSON or YAML MEL file into a session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Required: true, Usage: "File to import"},
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Target session (default: the one recorded in the file)"},
		},
		Action: func(c *cli.Context) error {
			deps, closeFn, err := offlineDeps(baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer closeFn()

			output, err := ops.Import(c.Context, deps, ops.ImportInput{
				Path:      c.String("path"),
				SessionID: c.String("session"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(baseDir string, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Delete sessions idle for longer than a number of days",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Value: "30d", Usage: "Idle threshold in days (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			days, err := parseDuration(c.String("older-than"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			deps, closeFn, err := offlineDeps(baseDir, cfg)
			if err != nil {
				return outputError(err)
			}
			defer closeFn()

			output, err := ops.Purge(c.Context, deps, ops.PurgeInput{OlderThanDays: days})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// Helper functions

// readInjects loads an inject list from --file or the app's reader. Bare
// arrays, MEL documents and export files are accepted. The second result is
// the session id recorded in an export file, if any.
func readInjects(c *cli.Context) ([]mel.Inject, string, error) {
	format := c.String("format")
	var data []byte

	if path := c.String("file"); path != "" {
		if ext := filepath.Ext(path); ext != "" {
			format = ext
		}
		var err error
		data, err = os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, "", errors.NewFileNotFound(path)
		}
		if err != nil {
			return nil, "", errors.NewInternal(err)
		}
	} else {
		if !readerHasData(c.App.Reader) {
			return nil, "", errors.NewInvalidRequest("injects must be piped via stdin or passed with --file")
		}
		var err error
		data, err = io.ReadAll(c.App.Reader)
		if err != nil {
			return nil, "", errors.NewInternal(err)
		}
	}

	format, err := ops.NormalizeFormat(format)
	if err != nil {
		return nil, "", err
	}
	sessionID, injects, err := ops.DecodeImport(data, format)
	if err != nil {
		return nil, "", err
	}
	return injects, sessionID, nil
}

// outputJSON writes result to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var melErr *errors.MelError
	if errors.As(err, &melErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", melErr.Code, melErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readerHasData reports whether r can be read without blocking on a terminal.
func readerHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(strings.TrimSpace(s), "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
