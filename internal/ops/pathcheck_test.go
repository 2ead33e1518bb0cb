package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Waaajid/chatbotwiteditrequests/internal/config"
	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}

func TestValidatePath_TraversalRejected(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../mel.json"},
		{"deep traversal", "../../etc/mel.yaml"},
		{"mid-path traversal", "/tmp/../etc/mel.json"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckWrite, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_Extensions(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{dir}

	for _, name := range []string{"mel.json", "mel.yaml", "mel.yml", "MEL.JSON"} {
		if err := ValidatePath(filepath.Join(dir, name), PathCheckWrite, cfg); err != nil {
			t.Errorf("ValidatePath(%s) error = %v", name, err)
		}
	}
	for _, name := range []string{"mel", "mel.jsonl", "mel.txt"} {
		if err := ValidatePath(filepath.Join(dir, name), PathCheckWrite, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("ValidatePath(%s) error = %v, want ErrInvalidRequest", name, err)
		}
	}
}

func TestValidatePath_DirectoryRestriction(t *testing.T) {
	cfg := config.DefaultConfig()

	// only ~/.melchat/exports is allowed by default
	err := ValidatePath(filepath.Join(t.TempDir(), "mel.json"), PathCheckWrite, cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidatePath_AllowUnsafePaths(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	file := filepath.Join(dir, "in.json")
	writeTestFile(t, file, "[]")

	if err := ValidatePath(file, PathCheckRead, cfg); err != nil {
		t.Errorf("read with AllowUnsafePaths: %v", err)
	}
	if err := ValidatePath(filepath.Join(dir, "out.yaml"), PathCheckWrite, cfg); err != nil {
		t.Errorf("write with AllowUnsafePaths: %v", err)
	}
}

func TestValidatePath_FileNotFound_ReadMode(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{dir}

	err := ValidatePath(filepath.Join(dir, "missing.json"), PathCheckRead, cfg)
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got: %v", err)
	}
}

func TestValidatePath_SymlinkRejected_EvenWithUnsafePaths(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	target := filepath.Join(dir, "target.json")
	writeTestFile(t, target, "[]")
	link := filepath.Join(dir, "link.json")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		if err := ValidatePath(link, mode, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected ErrInvalidRequest, got: %v", mode, err)
		}
	}
}

func TestValidatePath_NestedPathRejected(t *testing.T) {
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed}

	sub := filepath.Join(allowed, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}
	nested := filepath.Join(sub, "mel.json")
	writeTestFile(t, nested, "[]")

	if err := ValidatePath(nested, PathCheckRead, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("read: expected ErrInvalidRequest, got: %v", err)
	}
	if err := ValidatePath(nested, PathCheckWrite, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("write: expected ErrInvalidRequest, got: %v", err)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/mel.json", false},
		{"../mel.json", true},
		{"/home/../etc/passwd", true},
		{"./mel.json", false},
		{"mel..v2.json", false},
	}

	for _, tc := range tests {
		if got := containsTraversal(tc.path); got != tc.contains {
			t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
		}
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"01J9Z7Q", "01J9Z7Q"},
		{"path/to/session", "path-to-session"},
		{"path\\to\\session", "path-to-session"},
		{"../../../etc/passwd", "etc-passwd"},
		{"foo\x00bar", "foobar"},
		{"../../..", "unnamed"},
		{"a---b", "a-b"},
	}

	for _, tc := range tests {
		if got := SanitizeForFilename(tc.input); got != tc.expected {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
