package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/llm"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

// ChatInput contains parameters for the Chat operation.
type ChatInput struct {
	SessionID    string            // optional, minted when empty
	Messages     []session.Message // required, full conversation so far
	APIKey       string            // optional, overrides the configured key
	SystemPrompt string            // optional, defaults to config
	Snapshot     *mel.Document     // optional, caller's current document
}

// ChatOutput contains the result of the Chat operation.
type ChatOutput struct {
	SessionID      string        `json:"session_id"`
	Reply          string        `json:"reply"`
	Document       *mel.Document `json:"mel,omitempty"`
	JSONDetected   bool          `json:"json_detected"`
	Action         string        `json:"action"`
	ActionInferred bool          `json:"action_inferred,omitempty"`
	Source         string        `json:"source,omitempty"`
	Provenance     string        `json:"provenance,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// Chat runs one conversation turn against the language model and applies
// any inject update it returns.
//
// The document the update applies to is the caller's snapshot when it has
// injects, else the session's current document. A reply without a usable
// inject array leaves the document untouched.
func Chat(ctx context.Context, d Deps, input ChatInput) (*ChatOutput, error) {
	apiKey := strings.TrimSpace(input.APIKey)
	if apiKey == "" && d.Config != nil {
		apiKey = d.Config.APIKey
	}
	if apiKey == "" {
		return nil, errors.NewMissingCredential()
	}
	if len(input.Messages) == 0 {
		return nil, errors.NewInvalidRequest("messages must not be empty")
	}
	if d.LLM == nil {
		return nil, errors.NewInternal(fmt.Errorf("chat completion client not configured"))
	}

	sess, err := loadOrCreate(ctx, d.Sessions, input.SessionID)
	if err != nil {
		return nil, err
	}

	existing := sess.Current
	if !input.Snapshot.IsEmpty() {
		existing = input.Snapshot
	}

	systemPrompt := strings.TrimSpace(input.SystemPrompt)
	opts := llm.RequestOptions{}
	if d.Config != nil {
		if systemPrompt == "" {
			systemPrompt = d.Config.SystemPrompt
		}
		opts = llm.RequestOptions{
			Model:                   d.Config.Model,
			Temperature:             d.Config.Temperature,
			MaxTokens:               d.Config.MaxTokens,
			DisableTools:            d.Config.DisableTools,
			DisableStructuredOutput: d.Config.DisableStructuredOutput,
		}
	}

	history := make([]llm.Message, len(input.Messages))
	for i, m := range input.Messages {
		history[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	req, err := llm.BuildRequest(systemPrompt, existing, history, opts)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	start := time.Now()
	resp, err := d.LLM.Complete(ctx, apiKey, req)
	d.Metrics.ObserveUpstream(upstreamStatus(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	interp := llm.Interpret(resp.First())
	out := &ChatOutput{
		SessionID: sess.ID,
		Reply:     interp.Reply,
		Document:  existing,
		Action:    llm.ActionNone,
		Source:    string(interp.Source),
	}

	if interp.Detected() {
		mode, inferred := interp.Mode, false
		if mode == "" {
			mode, inferred = mel.ChooseMode(existing, len(interp.Injects)), true
		}
		prov := session.ProvenanceFor(existing, mode)

		doc, warnings, err := applyToSession(d, sess, existing, interp.Injects, mode, prov)
		if err != nil {
			return nil, err
		}

		out.Document = doc
		out.JSONDetected = true
		out.Action = string(mode)
		out.ActionInferred = inferred
		out.Provenance = string(prov)
		out.Warnings = warnings
		if out.Reply == "" {
			out.Reply = fmt.Sprintf("Updated the MEL to version %d with %d injects.", doc.Version, doc.InjectCount)
		}
	}

	sess.Messages = append(append([]session.Message{}, input.Messages...), session.Message{
		Role:    "assistant",
		Content: out.Reply,
	})
	sess.Touch()

	if err := d.Sessions.Put(ctx, sess); err != nil {
		return nil, err
	}

	d.Metrics.RecordChatTurn(out.Action)
	return out, nil
}

// upstreamStatus extracts the HTTP status for metrics. 0 means no response.
func upstreamStatus(err error) int {
	if err == nil {
		return 200
	}
	var mErr *errors.MelError
	if errors.As(err, &mErr) && mErr.Code == errors.ErrUpstream {
		return mErr.Status
	}
	return 0
}
