package llm

import (
	"strings"

	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
)

// RequestOptions carries the per-deployment request settings.
type RequestOptions struct {
	Model                   string
	Temperature             float64
	MaxTokens               int
	DisableTools            bool
	DisableStructuredOutput bool
}

// BuildRequest assembles the outbound request for one chat turn.
//
// The system message is the prompt followed by the current document's
// injects with bookkeeping fields stripped. history follows in order.
func BuildRequest(systemPrompt string, current *mel.Document, history []Message, opts RequestOptions) (Request, error) {
	system, err := SystemMessage(systemPrompt, current)
	if err != nil {
		return Request{}, err
	}

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, system)
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		messages = append(messages, m)
	}

	req := Request{
		Model:       opts.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if !opts.DisableTools {
		req.Tools = Tools()
		req.ToolChoice = "auto"
	}
	if !opts.DisableStructuredOutput {
		req.ResponseFormat = EnvelopeFormat()
	}
	return req, nil
}

// SystemMessage embeds the current MEL into the system prompt.
func SystemMessage(systemPrompt string, current *mel.Document) (Message, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(systemPrompt))

	if current.IsEmpty() {
		b.WriteString("\n\nThere is no MEL yet.")
		return Message{Role: "system", Content: b.String()}, nil
	}

	injects, err := mel.MarshalAuthorFields(current.Injects)
	if err != nil {
		return Message{}, err
	}
	b.WriteString("\n\nCurrent MEL (JSON):\n")
	b.Write(injects)
	return Message{Role: "system", Content: b.String()}, nil
}
