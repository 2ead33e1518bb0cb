package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

// maxImportBytes caps the size of an import file.
const maxImportBytes = 16 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path      string // required, .json, .yaml or .yml
	SessionID string // optional; defaults to the file's session_id, else a new session
}

// Import loads a MEL file into a session as a full replacement of its
// current document (full_creation when the session has none).
//
// The file may be an export written by Export, a bare document object with
// an injects array, or a bare inject array.
func Import(ctx context.Context, d Deps, input ImportInput) (*DocumentOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, d.Config); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		var mErr *errors.MelError
		if errors.As(err, &mErr) {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportBytes+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	if len(data) > maxImportBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("import file exceeds %d bytes", maxImportBytes))
	}

	format, err := NormalizeFormat(filepath.Ext(input.Path))
	if err != nil {
		return nil, err
	}
	fileSession, injects, err := DecodeImport(data, format)
	if err != nil {
		return nil, err
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = fileSession
	}
	sess, err := loadOrCreate(ctx, d.Sessions, sessionID)
	if err != nil {
		return nil, err
	}

	existing := sess.Current
	prov := session.ProvenanceFor(existing, mel.ModeReplace)
	doc, warnings, err := applyToSession(d, sess, existing, injects, mel.ModeReplace, prov)
	if err != nil {
		return nil, err
	}
	if err := d.Sessions.Put(ctx, sess); err != nil {
		return nil, err
	}

	return &DocumentOutput{
		SessionID:  sess.ID,
		Document:   doc,
		Provenance: string(prov),
		Action:     string(mel.ModeReplace),
		Warnings:   warnings,
	}, nil
}

// DecodeImport parses a MEL file body. It returns the session id recorded in
// an export file, if any, and the injects.
func DecodeImport(data []byte, format string) (string, []mel.Inject, error) {
	if format == FormatYAML {
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return "", nil, errors.NewInvalidRequest(fmt.Sprintf("invalid YAML: %v", err))
		}
		converted, err := json.Marshal(tree)
		if err != nil {
			return "", nil, errors.NewInvalidRequest(fmt.Sprintf("YAML is not representable as JSON: %v", err))
		}
		data = converted
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		injects, err := mel.DecodeInjects(data)
		return "", injects, err
	}

	var envelope struct {
		SessionID string          `json:"session_id"`
		Document  json.RawMessage `json:"mel"`
		Injects   json.RawMessage `json:"injects"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, errors.NewInvalidRequest("import file must hold a MEL export, a document, or an inject array")
	}

	raw := envelope.Injects
	if len(envelope.Document) > 0 && !bytes.Equal(envelope.Document, []byte("null")) {
		var doc struct {
			Injects json.RawMessage `json:"injects"`
		}
		if err := json.Unmarshal(envelope.Document, &doc); err != nil {
			return "", nil, errors.NewInvalidRequest("mel must be a document object")
		}
		raw = doc.Injects
	}

	injects, err := mel.DecodeInjects(raw)
	if err != nil {
		return "", nil, err
	}
	return envelope.SessionID, injects, nil
}
