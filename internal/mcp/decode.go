package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
)

// decode converts tool arguments into T. Unknown argument names are
// rejected so a misspelled session_id cannot silently mint a new session.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("arguments are not JSON: %v", err))
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&result); err != nil {
		msg := strings.TrimPrefix(err.Error(), "json: ")
		return result, errors.NewInvalidRequest("invalid arguments: " + msg)
	}
	return result, nil
}
