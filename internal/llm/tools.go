package llm

import (
	"maps"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
)

// Function tool names offered to the model.
const (
	ToolMerge   = "update_mel_merge"
	ToolReplace = "update_mel_replace"
)

// EnvelopeSchemaName is the json_schema name of the structured reply.
const EnvelopeSchemaName = "mel_reply"

// Structured reply actions. ActionNone means the turn carries no MEL change.
const (
	ActionMerge   = "merge"
	ActionReplace = "replace"
	ActionNone    = "none"
)

var mergeToolDef = mcp.NewTool(ToolMerge,
	mcp.WithDescription("Apply a targeted update to the current MEL. Send only the injects that are new or changed; "+
		"existing injects are matched by Number and everything not sent is kept as is."),
	mcp.WithArray("injects",
		mcp.Required(),
		mcp.Description("Injects to add or update"),
		mcp.Items(mel.InjectSchema()),
	),
)

var replaceToolDef = mcp.NewTool(ToolReplace,
	mcp.WithDescription("Replace the whole MEL with a complete list of injects. Injects not sent are removed."),
	mcp.WithArray("injects",
		mcp.Required(),
		mcp.Description("The complete, ordered inject list"),
		mcp.Items(mel.InjectSchema()),
	),
)

// ToolDefinitions returns the MEL update tools in MCP form.
func ToolDefinitions() []mcp.Tool {
	return []mcp.Tool{mergeToolDef, replaceToolDef}
}

// Tools converts the MEL update tools to OpenAI function declarations.
func Tools() []Tool {
	defs := ToolDefinitions()
	out := make([]Tool, len(defs))
	for i, t := range defs {
		out[i] = Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return out
}

// ModeForTool maps a tool name to its merge mode.
func ModeForTool(name string) (mel.Mode, bool) {
	switch name {
	case ToolMerge:
		return mel.ModeMerge, true
	case ToolReplace:
		return mel.ModeReplace, true
	}
	return "", false
}

// EnvelopeFormat returns the response_format that asks for a {reply, action, injects} object.
func EnvelopeFormat() *ResponseFormat {
	item := maps.Clone(mel.InjectSchema())
	item["additionalProperties"] = false

	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name:   EnvelopeSchemaName,
			Strict: true,
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reply": map[string]any{
						"type":        "string",
						"description": "Message shown to the user",
					},
					"action": map[string]any{
						"type":        "string",
						"enum":        []string{ActionMerge, ActionReplace, ActionNone},
						"description": "merge for targeted updates, replace for a complete list, none when the MEL is unchanged",
					},
					"injects": map[string]any{
						"type":  "array",
						"items": item,
					},
				},
				"required":             []string{"reply", "action", "injects"},
				"additionalProperties": false,
			},
		},
	}
}
