package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/logging"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/ops"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

var validate = validator.New()

// Handlers contains HTTP route handlers for the editor and JSON API.
type Handlers struct {
	deps     ops.Deps
	logger   *zap.Logger
	renderer *Renderer
	version  string
}

type messageRequest struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

type chatRequest struct {
	SessionID    string           `json:"session_id" validate:"max=128"`
	Messages     []messageRequest `json:"messages" validate:"required,min=1,dive"`
	APIKey       string           `json:"api_key"`
	SystemPrompt string           `json:"system_prompt"`
	Mel          *mel.Document    `json:"mel"`
}

type saveSessionRequest struct {
	Messages []messageRequest `json:"messages" validate:"dive"`
	Mel      *mel.Document    `json:"mel"`
}

type editMelRequest struct {
	MelID   string          `json:"mel_id" validate:"required"`
	Injects json.RawMessage `json:"injects"`
}

type applyMelRequest struct {
	Mode    string          `json:"mode" validate:"omitempty,oneof=merge replace auto"`
	Injects json.RawMessage `json:"injects"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// HandleChat handles POST /api/chat, one conversation turn.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := ops.Chat(r.Context(), h.deps, ops.ChatInput{
		SessionID:    req.SessionID,
		Messages:     toMessages(req.Messages),
		APIKey:       req.APIKey,
		SystemPrompt: req.SystemPrompt,
		Snapshot:     req.Mel,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.Warnings(h.logger, "chat", out.Warnings)
	renderJSON(w, http.StatusOK, out)
}

// HandleListSessions handles GET /api/sessions.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListSessions(r.Context(), h.deps, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleGetSession handles GET /api/sessions/{id}.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	input := ops.GetInput{SessionID: chi.URLParam(r, "id")}
	if r.URL.Query().Has("include_history") {
		v := parseBoolParam(r, "include_history")
		input.IncludeHistory = &v
	}

	sess, err := ops.GetSession(r.Context(), h.deps, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, sess)
}

// HandleSaveSession handles PUT /api/sessions/{id}.
func (h *Handlers) HandleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req saveSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := ops.SaveSession(r.Context(), h.deps, ops.SaveInput{
		SessionID: chi.URLParam(r, "id"),
		Messages:  toMessages(req.Messages),
		Current:   req.Mel,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	renderJSON(w, status, out)
}

// HandleDeleteSession handles DELETE /api/sessions/{id}.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteSession(r.Context(), h.deps, ops.DeleteInput{SessionID: chi.URLParam(r, "id")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleEditMel handles PUT /api/sessions/{id}/mel, a hand edit of the whole inject list.
func (h *Handlers) HandleEditMel(w http.ResponseWriter, r *http.Request) {
	var req editMelRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	injects, err := mel.DecodeInjects(req.Injects)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := ops.EditDocument(r.Context(), h.deps, ops.EditInput{
		SessionID: chi.URLParam(r, "id"),
		MelID:     req.MelID,
		Injects:   injects,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.Warnings(h.logger, "edit", out.Warnings)
	renderJSON(w, http.StatusOK, out)
}

// HandleApplyMel handles POST /api/sessions/{id}/mel, a merge or replace without a model turn.
func (h *Handlers) HandleApplyMel(w http.ResponseWriter, r *http.Request) {
	var req applyMelRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	injects, err := mel.DecodeInjects(req.Injects)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := ops.ApplyInjects(r.Context(), h.deps, ops.ApplyInput{
		SessionID: chi.URLParam(r, "id"),
		Mode:      req.Mode,
		Injects:   injects,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.Warnings(h.logger, "apply", out.Warnings)
	renderJSON(w, http.StatusOK, out)
}

// HandleHistory handles GET /api/sessions/{id}/history.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	out, err := ops.History(r.Context(), h.deps, ops.HistoryInput{
		SessionID:        chi.URLParam(r, "id"),
		IncludeDocuments: parseBoolParam(r, "include_documents"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleExport handles GET /api/sessions/{id}/export as a file download.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	format, err := ops.NormalizeFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	noHistory := false
	sess, err := ops.GetSession(r.Context(), h.deps, ops.GetInput{
		SessionID:      chi.URLParam(r, "id"),
		IncludeHistory: &noHistory,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if sess.Current == nil {
		h.writeError(w, r, errors.NewNotFound("mel", sess.ID))
		return
	}

	now := time.Now()
	data, err := ops.EncodeExport(sess.ID, sess.Current, format, now)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	contentType := "application/json"
	if format == ops.FormatYAML {
		contentType = "application/yaml"
	}
	filename := fmt.Sprintf("%s-v%d.%s", ops.SanitizeForFilename(sess.ID), sess.Current.Version, format)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleEditor handles GET /editor, the chat and inject table page.
func (h *Handlers) HandleEditor(w http.ResponseWriter, r *http.Request) {
	data := EditorPageData{
		PageData: PageData{
			Title:   "MEL Editor",
			Version: h.version,
		},
	}

	var messages []session.Message
	if id := strings.TrimSpace(r.URL.Query().Get("session")); id != "" {
		sess, err := ops.GetSession(r.Context(), h.deps, ops.GetInput{SessionID: id})
		switch {
		case errors.Is(err, errors.ErrNotFound):
			// unknown ids start a fresh session under that id
			data.SessionID = id
		case err != nil:
			h.renderer.renderError(w, r, err)
			return
		default:
			data.SessionID = sess.ID
			messages = sess.Messages
			data.Messages = renderMessages(sess.Messages)
			data.Document = sess.Current
			data.History = sess.History
		}
	}

	recent, err := ops.ListSessions(r.Context(), h.deps, ops.ListInput{Limit: 20})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	data.Sessions = recent.Items

	if data.Document != nil {
		snapshot, err := json.Marshal(data.Document)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInternal(err))
			return
		}
		data.DocumentJSON = string(snapshot)
	}
	if messages != nil {
		raw, err := json.Marshal(messages)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInternal(err))
			return
		}
		data.MessagesJSON = string(raw)
	}

	h.renderer.renderPage(w, r, "editor", data)
}

// writeError renders err as the JSON error envelope. Internal details are
// logged but never returned.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var mErr *errors.MelError
	if !errors.As(err, &mErr) {
		mErr = errors.NewInternal(err)
	}

	if mErr.Code == errors.ErrInternal {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Any("details", mErr.Details),
		)
	}
	renderJSON(w, mErr.Status, errorEnvelope(mErr))
}

func errorEnvelope(mErr *errors.MelError) map[string]any {
	body := map[string]any{
		"code":    string(mErr.Code),
		"message": mErr.Message,
		"status":  mErr.Status,
	}
	if len(mErr.Details) > 0 && mErr.Code != errors.ErrInternal {
		body["details"] = mErr.Details
	}
	return map[string]any{"error": body}
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return errors.NewInvalidRequest("failed to read request body")
	}
	if len(body) > maxBodyBytes {
		return errors.NewInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	if err := validate.Struct(dst); err != nil {
		return errors.NewInvalidRequest(formatValidationError(err))
	}
	return nil
}

// formatValidationError turns validator errors into one readable message.
func formatValidationError(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrors))
	for _, e := range fieldErrors {
		msgs = append(msgs, formatFieldError(e))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func toMessages(in []messageRequest) []session.Message {
	out := make([]session.Message, len(in))
	for i, m := range in {
		out[i] = session.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
