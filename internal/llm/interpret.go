package llm

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
)

// Source says where an inject array was found in a reply.
type Source string

const (
	SourceNone       Source = ""
	SourceToolCall   Source = "tool_call"
	SourceStructured Source = "structured"
	SourceFenced     Source = "fenced"
	SourceBare       Source = "bare"
)

// Interpretation is what a model reply asks for.
type Interpretation struct {
	// Reply is the text to show the user.
	Reply string

	// Injects is non-empty only when an update was detected.
	Injects []mel.Inject

	// Mode is the declared action, or empty when the caller must infer one.
	Mode mel.Mode

	Source Source
}

// Detected reports whether the reply carried an inject array.
func (i Interpretation) Detected() bool {
	return len(i.Injects) > 0
}

// envelope is the structured reply shape.
type envelope struct {
	Reply   string          `json:"reply"`
	Action  string          `json:"action"`
	Injects json.RawMessage `json:"injects"`
}

var fencedArray = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\[.*?\\])\\s*```")

// Interpret extracts an inject update from msg.
//
// Tool calls win over a structured envelope, which wins over a fenced JSON
// array, which wins over a bare array in free text. Anything that fails to
// decode is skipped; a reply with nothing usable yields no update.
func Interpret(msg ResponseMessage) Interpretation {
	out := Interpretation{Reply: strings.TrimSpace(msg.Content)}

	for _, call := range msg.ToolCalls {
		mode, ok := ModeForTool(call.Function.Name)
		if !ok {
			continue
		}
		var args struct {
			Injects json.RawMessage `json:"injects"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			continue
		}
		injects, err := mel.DecodeInjects(args.Injects)
		if err != nil || len(injects) == 0 {
			continue
		}
		out.Injects = injects
		out.Mode = mode
		out.Source = SourceToolCall
		return out
	}

	content := bytes.TrimSpace([]byte(msg.Content))

	if env, ok := parseEnvelope(content); ok {
		out.Reply = strings.TrimSpace(env.Reply)
		if env.Action == ActionNone {
			return out
		}
		injects, err := mel.DecodeInjects(env.Injects)
		if err != nil || len(injects) == 0 {
			return out
		}
		out.Injects = injects
		out.Source = SourceStructured
		if mode, err := mel.ParseMode(env.Action); err == nil {
			out.Mode = mode
		}
		return out
	}

	if m := fencedArray.FindSubmatch(content); m != nil {
		if injects, err := mel.DecodeInjects(m[1]); err == nil && len(injects) > 0 {
			out.Injects = injects
			out.Source = SourceFenced
			return out
		}
	}

	if start, end := bytes.IndexByte(content, '['), bytes.LastIndexByte(content, ']'); start >= 0 && end > start {
		if injects, err := mel.DecodeInjects(content[start : end+1]); err == nil && len(injects) > 0 {
			out.Injects = injects
			out.Source = SourceBare
			return out
		}
	}

	return out
}

// parseEnvelope accepts content that is a JSON object with an injects or action key.
func parseEnvelope(content []byte) (envelope, bool) {
	if len(content) == 0 || content[0] != '{' {
		return envelope{}, false
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(content, &keys); err != nil {
		return envelope{}, false
	}
	_, hasInjects := keys["injects"]
	_, hasAction := keys["action"]
	if !hasInjects && !hasAction {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return envelope{}, false
	}
	return env, true
}
