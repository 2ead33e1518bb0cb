package mel

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
)

// DecodeInjects shape-checks raw JSON as an array of inject objects.
// Field completeness is not validated.
func DecodeInjects(data []byte) ([]Inject, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, errors.NewInvalidRequest("injects must be a JSON array of objects")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewInvalidRequest("injects must be a JSON array of objects")
	}

	injects := make([]Inject, 0, len(raw))
	for i, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || r[0] != '{' {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("injects[%d] must be an object", i))
		}
		var in Inject
		if err := json.Unmarshal(r, &in); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("injects[%d]: %v", i, err))
		}
		injects = append(injects, in)
	}
	return injects, nil
}

// DecodeValue shape-checks an already-decoded JSON value (for example a tool
// argument) as an array of inject objects.
func DecodeValue(v any) ([]Inject, error) {
	if v == nil {
		return nil, errors.NewInvalidRequest("injects must be a JSON array of objects")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewInvalidRequest("injects must be a JSON array of objects")
	}
	return DecodeInjects(b)
}
