package mel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// DefaultRecipient is the conventional value of an inject's To field.
const DefaultRecipient = "All"

// Number is an inject's author-assigned sequence number.
// It is not unique: models and users may reuse a number across edits.
// JSON numbers and strings are both accepted; integers are written back as numbers.
type Number string

// UnmarshalJSON accepts a JSON number, a JSON string, or null.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("Number must be a number or a string")
	}
	*n = Number(num.String())
	return nil
}

// MarshalJSON writes canonical integers as JSON numbers and anything else as a string.
func (n Number) MarshalJSON() ([]byte, error) {
	if v, err := strconv.Atoi(string(n)); err == nil && strconv.Itoa(v) == string(n) {
		return []byte(string(n)), nil
	}
	return json.Marshal(string(n))
}

// Inject is one simulated communication in a crisis exercise.
//
// The author-facing fields are set by the model or the user. ID, MelID,
// OriginalIndex and LastModified are bookkeeping maintained by the builder
// and merge engine. Keys outside the known field set are kept in Extra.
type Inject struct {
	ID            string
	Number        Number
	Serial        string
	Time          string
	From          string
	Faction       string
	To            string
	Method        string
	Subject       string
	Message       string
	MelID         string
	OriginalIndex int
	LastModified  time.Time
	Extra         map[string]json.RawMessage
}

// injectWire is the JSON shape of an Inject.
type injectWire struct {
	ID            string     `json:"id,omitempty"`
	Number        Number     `json:"Number,omitempty"`
	Serial        string     `json:"Serial,omitempty"`
	Time          string     `json:"Time,omitempty"`
	From          string     `json:"From,omitempty"`
	Faction       string     `json:"Faction,omitempty"`
	To            string     `json:"To,omitempty"`
	Method        string     `json:"Method,omitempty"`
	Subject       string     `json:"Subject,omitempty"`
	Message       string     `json:"Message,omitempty"`
	MelID         string     `json:"mel_id,omitempty"`
	OriginalIndex *int       `json:"original_index,omitempty"`
	LastModified  *time.Time `json:"last_modified,omitempty"`
}

// knownKeys lists every JSON key owned by injectWire.
var knownKeys = map[string]bool{
	"id": true, "Number": true, "Serial": true, "Time": true, "From": true,
	"Faction": true, "To": true, "Method": true, "Subject": true, "Message": true,
	"mel_id": true, "original_index": true, "last_modified": true,
}

func (in Inject) wire(bookkeeping bool) injectWire {
	w := injectWire{
		Number:  in.Number,
		Serial:  in.Serial,
		Time:    in.Time,
		From:    in.From,
		Faction: in.Faction,
		To:      in.To,
		Method:  in.Method,
		Subject: in.Subject,
		Message: in.Message,
	}
	if bookkeeping {
		w.ID = in.ID
		w.MelID = in.MelID
		idx := in.OriginalIndex
		w.OriginalIndex = &idx
		if !in.LastModified.IsZero() {
			lm := in.LastModified
			w.LastModified = &lm
		}
	}
	return w
}

func (in Inject) marshal(bookkeeping bool) ([]byte, error) {
	base, err := json.Marshal(in.wire(bookkeeping))
	if err != nil {
		return nil, err
	}
	if len(in.Extra) == 0 {
		return base, nil
	}

	fields := make(map[string]json.RawMessage, len(in.Extra)+13)
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range in.Extra {
		if knownKeys[k] {
			continue
		}
		fields[k] = v
	}
	return json.Marshal(fields)
}

// MarshalJSON encodes the inject including bookkeeping fields and extension keys.
func (in Inject) MarshalJSON() ([]byte, error) {
	return in.marshal(true)
}

// UnmarshalJSON decodes an inject object. Unknown keys go to Extra.
func (in *Inject) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("inject must be a JSON object")
	}
	if fields == nil {
		return fmt.Errorf("inject must be a JSON object")
	}

	var w injectWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*in = Inject{
		ID:      w.ID,
		Number:  w.Number,
		Serial:  w.Serial,
		Time:    w.Time,
		From:    w.From,
		Faction: w.Faction,
		To:      w.To,
		Method:  w.Method,
		Subject: w.Subject,
		Message: w.Message,
		MelID:   w.MelID,
	}
	if w.OriginalIndex != nil {
		in.OriginalIndex = *w.OriginalIndex
	}
	if w.LastModified != nil {
		in.LastModified = *w.LastModified
	}
	for k, v := range fields {
		if knownKeys[k] {
			continue
		}
		if in.Extra == nil {
			in.Extra = make(map[string]json.RawMessage)
		}
		in.Extra[k] = v
	}
	return nil
}

// Clone returns a copy of the inject that shares no maps with the original.
func (in Inject) Clone() Inject {
	out := in
	if in.Extra != nil {
		out.Extra = maps.Clone(in.Extra)
	}
	return out
}

// overlay copies every non-empty author field and extension key of src onto in.
func (in *Inject) overlay(src Inject) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if src.Number != "" {
		in.Number = src.Number
	}
	set(&in.Serial, src.Serial)
	set(&in.Time, src.Time)
	set(&in.From, src.From)
	set(&in.Faction, src.Faction)
	set(&in.To, src.To)
	set(&in.Method, src.Method)
	set(&in.Subject, src.Subject)
	set(&in.Message, src.Message)
	for k, v := range src.Extra {
		if in.Extra == nil {
			in.Extra = make(map[string]json.RawMessage)
		}
		in.Extra[k] = v
	}
}

// MarshalAuthorFields encodes injects with bookkeeping fields stripped.
// This is the view handed to the language model as context.
func MarshalAuthorFields(injects []Inject) ([]byte, error) {
	parts := make([]json.RawMessage, 0, len(injects))
	for _, in := range injects {
		b, err := in.marshal(false)
		if err != nil {
			return nil, err
		}
		parts = append(parts, b)
	}
	return json.Marshal(parts)
}

// DuplicateNumbers returns the sequence numbers that occur more than once, in first-seen order.
func DuplicateNumbers(injects []Inject) []Number {
	seen := make(map[Number]int, len(injects))
	var dups []Number
	for _, in := range injects {
		if in.Number == "" {
			continue
		}
		seen[in.Number]++
		if seen[in.Number] == 2 {
			dups = append(dups, in.Number)
		}
	}
	return dups
}
