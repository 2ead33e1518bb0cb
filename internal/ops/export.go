package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ExportSchemaVersion is written into every export file.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	SessionID string // required
	Path      string // optional, default: ~/.melchat/exports/<session>-<timestamp>.<format>
	Format    string // json (default) or yaml; inferred from Path's extension when set
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path        string `json:"path"`
	Format      string `json:"format"`
	MelID       string `json:"mel_id"`
	Version     int    `json:"version"`
	InjectCount int    `json:"inject_count"`
	ExportedAt  int64  `json:"exported_at"`
}

// ExportFile is the on-disk shape of an exported MEL.
type ExportFile struct {
	MelchatExport bool          `json:"melchat_export"`
	SchemaVersion string        `json:"schema_version"`
	ExportedAt    int64         `json:"exported_at"`
	SessionID     string        `json:"session_id"`
	Document      *mel.Document `json:"mel"`
}

// NormalizeFormat maps a format name or file extension to json or yaml.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.NewInvalidRequest("format must be one of: json, yaml")
	}
}

// EncodeExport renders the export file for a session's document.
func EncodeExport(sessionID string, doc *mel.Document, format string, exportedAt time.Time) ([]byte, error) {
	data, err := json.MarshalIndent(ExportFile{
		MelchatExport: true,
		SchemaVersion: ExportSchemaVersion,
		ExportedAt:    exportedAt.Unix(),
		SessionID:     sessionID,
		Document:      doc,
	}, "", "  ")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if format != FormatYAML {
		return append(data, '\n'), nil
	}

	// YAML goes through the generic JSON tree so inject extension fields and
	// json tags are honored.
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, errors.NewInternal(err)
	}
	out, err := yaml.Marshal(integralNumbers(tree))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// integralNumbers rewrites whole float64 values in a decoded JSON tree as
// int64 so YAML prints 3 rather than 3e+00 style floats.
func integralNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = integralNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = integralNumbers(e)
		}
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
	}
	return v
}

// Export writes a session's current document to a JSON or YAML file.
func Export(ctx context.Context, d Deps, input ExportInput) (*ExportOutput, error) {
	id, err := requireSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	format := input.Format
	if format == "" && input.Path != "" {
		format = filepath.Ext(input.Path)
	}
	format, err = NormalizeFormat(format)
	if err != nil {
		return nil, err
	}

	sess, err := d.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Current == nil {
		return nil, errors.NewNotFound("mel", id)
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath, err = defaultExportPath(id, format, now)
		if err != nil {
			return nil, err
		}
	}

	// Default paths embed the session id, so they are validated too.
	if err := ValidatePath(exportPath, PathCheckWrite, d.Config); err != nil {
		return nil, err
	}

	data, err := EncodeExport(sess.ID, sess.Current, format, now)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(exportPath, data); err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:        exportPath,
		Format:      format,
		MelID:       sess.Current.ID,
		Version:     sess.Current.Version,
		InjectCount: sess.Current.InjectCount,
		ExportedAt:  now.Unix(),
	}, nil
}

// writeFileAtomic writes data to a temp file beside path and renames it into
// place, so a failed export leaves any existing file intact.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Windows needs the handle closed before rename.
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path must not be a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// defaultExportPath returns ~/.melchat/exports/<session>-<timestamp>.<format>.
func defaultExportPath(sessionID, format string, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s-%s.%s", SanitizeForFilename(sessionID), now.Format("2006-01-02T150405"), format)
	return filepath.Join(dir, filename), nil
}
