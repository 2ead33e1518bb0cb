package mel

// InjectSchema returns the JSON schema of an author-facing inject.
func InjectSchema() map[string]any {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"Number":  map[string]any{"type": "integer", "description": "Sequence number of the inject"},
			"Serial":  str("Event or phase title used to group injects"),
			"Time":    str("Scenario time, free-form"),
			"From":    str("Sender"),
			"Faction": str("Sender's faction"),
			"To":      str("Recipient, conventionally \"All\""),
			"Method":  str("Channel or delivery method"),
			"Subject": str("Subject line"),
			"Message": str("Message body"),
		},
		"required": []string{"Number", "Serial", "Time", "From", "Faction", "To", "Method", "Subject", "Message"},
	}
}

// InjectArraySchema returns the JSON schema of an inject array.
func InjectArraySchema() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": InjectSchema(),
	}
}
