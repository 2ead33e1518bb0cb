package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/logging"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps   ops.Deps
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance. A nil logger discards output.
func NewHandlers(deps ops.Deps, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{deps: deps, logger: logger}
}

// Request types for each tool

// InjectsRequest represents the arguments for mel_merge and mel_replace.
type InjectsRequest struct {
	SessionID string          `json:"session_id,omitempty"`
	Injects   json.RawMessage `json:"injects"`
}

// EditRequest represents the arguments for mel_edit.
type EditRequest struct {
	SessionID string          `json:"session_id"`
	MelID     string          `json:"mel_id"`
	Injects   json.RawMessage `json:"injects"`
}

// GetRequest represents the arguments for mel_get.
type GetRequest struct {
	SessionID      string `json:"session_id"`
	IncludeHistory *bool  `json:"include_history,omitempty"`
}

// HistoryRequest represents the arguments for mel_history.
type HistoryRequest struct {
	SessionID        string `json:"session_id"`
	IncludeDocuments bool   `json:"include_documents,omitempty"`
}

// ExportRequest represents the arguments for mel_export.
type ExportRequest struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path,omitempty"`
	Format    string `json:"format,omitempty"`
}

// ImportRequest represents the arguments for mel_import.
type ImportRequest struct {
	Path      string `json:"path"`
	SessionID string `json:"session_id,omitempty"`
}

// ListRequest represents the arguments for session_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// DeleteRequest represents the arguments for session_delete.
type DeleteRequest struct {
	SessionID string `json:"session_id"`
}

// PurgeRequest represents the arguments for session_purge.
type PurgeRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

// Handler implementations

// HandleMerge handles the mel_merge tool call.
func (h *Handlers) HandleMerge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.apply(ctx, req, mel.ModeMerge)
}

// HandleReplace handles the mel_replace tool call.
func (h *Handlers) HandleReplace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.apply(ctx, req, mel.ModeReplace)
}

func (h *Handlers) apply(ctx context.Context, req mcp.CallToolRequest, mode mel.Mode) (*mcp.CallToolResult, error) {
	input, err := decode[InjectsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	injects, err := mel.DecodeInjects(input.Injects)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ApplyInjects(ctx, h.deps, ops.ApplyInput{
		SessionID: input.SessionID,
		Mode:      string(mode),
		Injects:   injects,
	})
	if err != nil {
		return errorResult(err), nil
	}

	logging.Warnings(h.logger, "mel_"+string(mode), result.Warnings)
	return successResult(result)
}

// HandleEdit handles the mel_edit tool call.
func (h *Handlers) HandleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EditRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	injects, err := mel.DecodeInjects(input.Injects)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.EditDocument(ctx, h.deps, ops.EditInput{
		SessionID: input.SessionID,
		MelID:     input.MelID,
		Injects:   injects,
	})
	if err != nil {
		return errorResult(err), nil
	}

	logging.Warnings(h.logger, "mel_edit", result.Warnings)
	return successResult(result)
}

// HandleGet handles the mel_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetSession(ctx, h.deps, ops.GetInput{
		SessionID:      input.SessionID,
		IncludeHistory: input.IncludeHistory,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistory handles the mel_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.History(ctx, h.deps, ops.HistoryInput{
		SessionID:        input.SessionID,
		IncludeDocuments: input.IncludeDocuments,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the mel_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Export(ctx, h.deps, ops.ExportInput{
		SessionID: input.SessionID,
		Path:      input.Path,
		Format:    input.Format,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the mel_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Import(ctx, h.deps, ops.ImportInput{
		Path:      input.Path,
		SessionID: input.SessionID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the session_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ListSessions(ctx, h.deps, ops.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the session_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.DeleteSession(ctx, h.deps, ops.DeleteInput{SessionID: input.SessionID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the session_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Purge(ctx, h.deps, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// IsError is set so MCP clients recognize failures. INTERNAL details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var melErr *errors.MelError
	if errors.As(err, &melErr) {
		errorObj := map[string]any{
			"code":    melErr.Code,
			"message": melErr.Message,
			"status":  melErr.Status,
		}
		if melErr.Code != errors.ErrInternal && melErr.Details != nil {
			errorObj["details"] = melErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
