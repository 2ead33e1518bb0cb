package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/urfave/cli/v2"

	"github.com/Waaajid/chatbotwiteditrequests/internal/config"
	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/ops"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

const sampleInjects = `[
  {"Number": 1, "Serial": "Detection", "Subject": "EDR alert", "Message": "Ransom note on FS01"},
  {"Number": 2, "Serial": "Detection", "Subject": "Helpdesk", "Message": "Users locked out"},
  {"Number": 3, "Serial": "Escalation", "Subject": "Press", "Message": "Journalist calls"}
]`

// testEnv returns a temp base dir and a config allowing exports into it.
func testEnv(t *testing.T) (string, *config.Config) {
	t.Helper()
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{baseDir}
	return baseDir, cfg
}

// runCLI runs args against a fresh app and returns stdout.
func runCLI(t *testing.T, baseDir string, cfg *config.Config, stdin string, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(baseDir, cfg)
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	if stdin != "" {
		app.Reader = strings.NewReader(stdin)
	}
	err := app.Run(append([]string{"melchat"}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, baseDir string, cfg *config.Config, stdin string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, baseDir, cfg, stdin, args...)
	if err != nil {
		t.Fatalf("melchat %s failed: %v", strings.Join(args, " "), err)
	}
	return out
}

func decodeOutput[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	return v
}

// TestParseDuration tests the parseDuration helper function.
func TestParseDuration(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{name: "valid days", input: "7d", expected: 7},
		{name: "zero days", input: "0d", expected: 0},
		{name: "padded", input: " 30d ", expected: 30},
		{name: "missing suffix", input: "7", expectError: true},
		{name: "hours not supported", input: "12h", expectError: true},
		{name: "negative", input: "-1d", expectError: true},
		{name: "not a number", input: "xd", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got %d", result)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestOutputError(t *testing.T) {
	err := outputError(errors.NewNotFound("session", "abc"))
	exitErr, ok := err.(cli.ExitCoder)
	if !ok {
		t.Fatalf("outputError() = %T, want cli.ExitCoder", err)
	}
	if exitErr.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", exitErr.ExitCode())
	}
	if !strings.HasPrefix(err.Error(), "[NOT_FOUND] ") {
		t.Errorf("message = %q, want [NOT_FOUND] prefix", err.Error())
	}
}

func TestOpenStore(t *testing.T) {
	baseDir, cfg := testEnv(t)

	store, closeFn, err := openStore(baseDir, cfg, config.StoreMemory)
	if err != nil {
		t.Fatalf("openStore(memory) error = %v", err)
	}
	closeFn()
	if _, ok := store.(*session.MemoryStore); !ok {
		t.Errorf("memory backend = %T", store)
	}

	_, closeFn, err = openStore(baseDir, cfg, config.StoreSQLite)
	if err != nil {
		t.Fatalf("openStore(sqlite) error = %v", err)
	}
	closeFn()
	if _, err := os.Stat(filepath.Join(baseDir, "melchat.db")); err != nil {
		t.Errorf("expected melchat.db in base dir: %v", err)
	}

	if _, _, err := openStore(baseDir, cfg, "redis"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("openStore(redis) error = %v, want INVALID_REQUEST", err)
	}
}

func TestCLIBuild(t *testing.T) {
	baseDir, cfg := testEnv(t)

	out := mustRun(t, baseDir, cfg, sampleInjects, "build")
	doc := decodeOutput[mel.Document](t, out)

	if doc.InjectCount != 3 || doc.Version != 1 {
		t.Errorf("document = v%d with %d injects, want v1 with 3", doc.Version, doc.InjectCount)
	}
	if len(doc.Events) != 2 {
		t.Errorf("events = %d, want 2 (Detection, Escalation)", len(doc.Events))
	}
	if doc.Injects[0].To != mel.DefaultRecipient {
		t.Errorf("To = %q, want default recipient", doc.Injects[0].To)
	}
}

func TestCLIBuild_YAMLFile(t *testing.T) {
	baseDir, cfg := testEnv(t)
	path := filepath.Join(baseDir, "injects.yaml")
	yamlBody := "- Number: 1\n  Serial: Start\n  Subject: Kickoff\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := mustRun(t, baseDir, cfg, "", "build", "--file", path, "--mel-id", "fixed-id")
	doc := decodeOutput[mel.Document](t, out)
	if doc.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", doc.ID)
	}
	if doc.Injects[0].Number != "1" || doc.Injects[0].Subject != "Kickoff" {
		t.Errorf("inject = %+v", doc.Injects[0])
	}
}

func TestCLIBuild_Errors(t *testing.T) {
	baseDir, cfg := testEnv(t)

	if _, err := runCLI(t, baseDir, cfg, `{"Number": 1}`, "build"); err == nil {
		t.Error("expected error for an object that is not a MEL")
	}
	if _, err := runCLI(t, baseDir, cfg, "", "build", "--file", filepath.Join(baseDir, "missing.json")); err == nil ||
		!strings.Contains(err.Error(), "FILE_NOT_FOUND") {
		t.Errorf("expected FILE_NOT_FOUND, got %v", err)
	}
}

func TestCLIMergeAndSessions(t *testing.T) {
	baseDir, cfg := testEnv(t)

	out := mustRun(t, baseDir, cfg, sampleInjects, "merge", "--session", "drill", "--mode", "replace")
	created := decodeOutput[ops.DocumentOutput](t, out)
	if created.Provenance != string(session.FullCreation) {
		t.Errorf("provenance = %q, want full_creation", created.Provenance)
	}

	out = mustRun(t, baseDir, cfg, `[{"Number": 2, "Message": "All staff locked out"}]`, "merge", "-s", "drill")
	merged := decodeOutput[ops.DocumentOutput](t, out)
	if merged.Action != "merge" || !merged.ActionInferred {
		t.Errorf("action = %q inferred=%v, want inferred merge", merged.Action, merged.ActionInferred)
	}
	if merged.Document.InjectCount != 3 || merged.Document.Injects[1].Message != "All staff locked out" {
		t.Errorf("merged document = %+v", merged.Document)
	}

	list := decodeOutput[ops.ListOutput](t, mustRun(t, baseDir, cfg, "", "sessions", "list"))
	if len(list.Items) != 1 || list.Items[0].ID != "drill" || list.Items[0].Version != 2 {
		t.Errorf("list = %+v", list.Items)
	}

	sess := decodeOutput[session.Session](t, mustRun(t, baseDir, cfg, "", "sessions", "get", "drill"))
	if len(sess.History) != 2 {
		t.Errorf("history entries = %d, want 2", len(sess.History))
	}
	sess = decodeOutput[session.Session](t, mustRun(t, baseDir, cfg, "", "sessions", "get", "--no-history", "drill"))
	if len(sess.History) != 0 {
		t.Errorf("--no-history returned %d entries", len(sess.History))
	}

	history := decodeOutput[ops.HistoryOutput](t, mustRun(t, baseDir, cfg, "", "history", "drill"))
	gotProv := []string{history.Versions[0].Provenance, history.Versions[1].Provenance}
	if diff := cmp.Diff([]string{"full_creation", "partial_update"}, gotProv); diff != "" {
		t.Errorf("provenance mismatch (-want +got):\n%s", diff)
	}

	mustRun(t, baseDir, cfg, "", "sessions", "delete", "drill")
	if _, err := runCLI(t, baseDir, cfg, "", "sessions", "get", "drill"); err == nil ||
		!strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}
}

func TestCLIMerge_BadMode(t *testing.T) {
	baseDir, cfg := testEnv(t)

	_, err := runCLI(t, baseDir, cfg, sampleInjects, "merge", "--mode", "upsert")
	if err == nil || !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestCLIExportImport(t *testing.T) {
	baseDir, cfg := testEnv(t)
	mustRun(t, baseDir, cfg, sampleInjects, "merge", "-s", "drill", "-m", "replace")

	path := filepath.Join(baseDir, "drill.yaml")
	exported := decodeOutput[ops.ExportOutput](t, mustRun(t, baseDir, cfg, "", "export", "--path", path, "drill"))
	if exported.Format != "yaml" || exported.InjectCount != 3 {
		t.Errorf("export = %+v", exported)
	}

	imported := decodeOutput[ops.DocumentOutput](t, mustRun(t, baseDir, cfg, "", "import", "--path", path, "--session", "copy"))
	if imported.SessionID != "copy" || imported.Document.InjectCount != 3 {
		t.Errorf("import = %+v", imported)
	}

	// An export file can feed merge directly; the session id comes from the file.
	out := mustRun(t, baseDir, cfg, "", "merge", "--file", path, "--mode", "replace")
	replayed := decodeOutput[ops.DocumentOutput](t, out)
	if replayed.SessionID != "drill" || replayed.Document.Version != 2 {
		t.Errorf("replay = session %q v%d, want drill v2", replayed.SessionID, replayed.Document.Version)
	}
}

func TestCLIPurge(t *testing.T) {
	baseDir, cfg := testEnv(t)
	mustRun(t, baseDir, cfg, sampleInjects, "merge", "-s", "drill")

	purged := decodeOutput[ops.PurgeOutput](t, mustRun(t, baseDir, cfg, "", "purge", "--older-than", "7d"))
	if purged.Purged != 0 {
		t.Errorf("purged = %d, want 0 for a fresh session", purged.Purged)
	}

	if _, err := runCLI(t, baseDir, cfg, "", "purge", "--older-than", "0d"); err == nil {
		t.Error("expected error for a zero-day threshold")
	}
	if _, err := runCLI(t, baseDir, cfg, "", "purge", "--older-than", "week"); err == nil {
		t.Error("expected error for a malformed threshold")
	}
}

func TestNewCLIApp_Commands(t *testing.T) {
	app := newCLIApp("", nil)

	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	want := []string{"serve", "mcp", "build", "merge", "sessions", "history", "export", "import", "purge"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}
