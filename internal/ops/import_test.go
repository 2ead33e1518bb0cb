package ops

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

func TestImport_RoundTripThroughExport(t *testing.T) {
	d := newTestDeps(t, nil)
	ctx := context.Background()
	seeded := seedSession(t, d, "s1", 3)
	dir := d.Config.AllowedPaths[0]

	for _, name := range []string{"mel.json", "mel.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if _, err := Export(ctx, d, ExportInput{SessionID: "s1", Path: path}); err != nil {
				t.Fatalf("Export failed: %v", err)
			}

			out, err := Import(ctx, d, ImportInput{Path: path, SessionID: "copy-" + name})
			if err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			if out.Provenance != string(session.FullCreation) || out.Document.Version != 1 {
				t.Errorf("got %s v%d, want full_creation v1", out.Provenance, out.Document.Version)
			}
			if out.Document.InjectCount != 3 {
				t.Fatalf("InjectCount = %d, want 3", out.Document.InjectCount)
			}
			for i, in := range out.Document.Injects {
				want := seeded.Current.Injects[i]
				if in.ID != want.ID || in.Subject != want.Subject || in.Number != want.Number {
					t.Errorf("inject %d = %+v, want %+v", i, in, want)
				}
			}
		})
	}
}

func TestImport_IntoExistingSessionReplaces(t *testing.T) {
	d := newTestDeps(t, nil)
	ctx := context.Background()
	seedSession(t, d, "s1", 4)

	path := filepath.Join(d.Config.AllowedPaths[0], "bare.json")
	writeTestFile(t, path, `[{"Number":1,"Serial":"Imported"}]`)

	out, err := Import(ctx, d, ImportInput{Path: path, SessionID: "s1"})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Provenance != string(session.FullReplacement) || out.Document.Version != 2 || out.Document.InjectCount != 1 {
		t.Errorf("got %s v%d with %d injects", out.Provenance, out.Document.Version, out.Document.InjectCount)
	}
}

func TestImport_UsesSessionIDFromFile(t *testing.T) {
	d := newTestDeps(t, nil)
	ctx := context.Background()

	path := filepath.Join(d.Config.AllowedPaths[0], "export.yaml")
	writeTestFile(t, path, `
melchat_export: true
schema_version: "1.0"
session_id: from-file
mel:
  injects:
    - Number: 1
      Serial: Opening
      Message: Power outage reported
`)

	out, err := Import(ctx, d, ImportInput{Path: path})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.SessionID != "from-file" {
		t.Errorf("SessionID = %q, want from-file", out.SessionID)
	}
	if out.Document.Injects[0].Message != "Power outage reported" {
		t.Errorf("inject = %+v", out.Document.Injects[0])
	}
}

func TestImport_Errors(t *testing.T) {
	d := newTestDeps(t, nil)
	ctx := context.Background()
	dir := d.Config.AllowedPaths[0]

	writeTestFile(t, filepath.Join(dir, "object.json"), `{"Number":1}`)
	writeTestFile(t, filepath.Join(dir, "scalars.json"), `[1,2]`)
	writeTestFile(t, filepath.Join(dir, "broken.yaml"), "injects: [\n")

	tests := []struct {
		name string
		path string
		code errors.ErrorCode
	}{
		{"missing path", "", errors.ErrInvalidRequest},
		{"missing file", filepath.Join(dir, "nope.json"), errors.ErrFileNotFound},
		{"not an array", filepath.Join(dir, "object.json"), errors.ErrInvalidRequest},
		{"array of scalars", filepath.Join(dir, "scalars.json"), errors.ErrInvalidRequest},
		{"invalid yaml", filepath.Join(dir, "broken.yaml"), errors.ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Import(ctx, d, ImportInput{Path: tc.path})
			if !errors.Is(err, tc.code) {
				t.Errorf("error = %v, want %s", err, tc.code)
			}
		})
	}

	if _, total, _ := d.Sessions.List(ctx, 0, 0); total != 0 {
		t.Errorf("failed imports stored %d sessions", total)
	}
}
