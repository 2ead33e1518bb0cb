package mel

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how an incoming batch is reconciled with an existing document.
type Mode string

const (
	ModeMerge   Mode = "merge"   // targeted update addressed by ID or Number
	ModeReplace Mode = "replace" // incoming batch becomes the whole list
)

// ParseMode validates a mode string. Empty input is rejected.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("mode must be one of: merge, replace")
	}
}

// ChooseMode infers a mode when none was declared: a batch strictly shorter
// than the current document is treated as partial. A same-length partial
// update is indistinguishable from a full replacement and will drop injects.
func ChooseMode(existing *Document, incomingLen int) Mode {
	if existing != nil && incomingLen < len(existing.Injects) {
		return ModeMerge
	}
	return ModeReplace
}

// Merge reconciles incoming injects with existing and returns the next version.
// existing is not modified.
//
// A nil or empty existing document is handled as a fresh Build regardless of
// mode. In replace mode the incoming list becomes authoritative. In merge mode
// each incoming inject updates the first entry whose ID, or failing that
// Number, matches it; unmatched injects are appended. An ID match anywhere in
// the list wins over an earlier Number match.
func Merge(existing *Document, incoming []Inject, mode Mode) (*Document, error) {
	if mode != ModeMerge && mode != ModeReplace {
		return nil, fmt.Errorf("unknown merge mode %q", mode)
	}
	if existing.IsEmpty() {
		var docID string
		if existing != nil {
			docID = existing.ID
		}
		return Build(incoming, docID), nil
	}

	if mode == ModeReplace {
		return Replace(existing, incoming), nil
	}

	ts := now()
	next := existing.Clone()
	next.Version = existing.Version + 1
	next.Timestamp = ts
	next.Injects = mergeInjects(next.ID, next.Injects, incoming, ts)
	next.InjectCount = len(next.Injects)
	next.Events = BuildEvents(next.Injects)
	return next, nil
}

// Replace makes incoming the whole inject list of the next version of
// existing. Unlike Merge, an existing document with no injects still gets a
// version bump and keeps its ID and CreatedAt. A nil existing is built fresh.
func Replace(existing *Document, incoming []Inject) *Document {
	if existing == nil {
		return Build(incoming, "")
	}

	ts := now()
	next := existing.Clone()
	next.Version = existing.Version + 1
	next.Timestamp = ts
	next.Injects = replaceInjects(next.ID, incoming, ts)
	next.InjectCount = len(next.Injects)
	next.Events = BuildEvents(next.Injects)
	return next
}

func replaceInjects(docID string, incoming []Inject, ts time.Time) []Inject {
	out := make([]Inject, len(incoming))
	for i, in := range incoming {
		in = in.Clone()
		if in.ID == "" {
			in.ID = NewInjectID()
		}
		in.MelID = docID
		in.OriginalIndex = i
		in.LastModified = ts
		out[i] = in
	}
	return out
}

func mergeInjects(docID string, merged, incoming []Inject, ts time.Time) []Inject {
	for _, in := range incoming {
		idx := findMatch(merged, in)
		if idx >= 0 {
			target := merged[idx]
			target.overlay(in)
			target.LastModified = ts
			merged[idx] = target
			continue
		}

		in = in.Clone()
		if in.ID == "" {
			in.ID = NewInjectID()
		}
		if in.To == "" {
			in.To = DefaultRecipient
		}
		in.MelID = docID
		in.OriginalIndex = len(merged)
		in.LastModified = ts
		merged = append(merged, in)
	}
	return merged
}

// findMatch returns the index of the first inject with the same ID, else the
// first with the same Number, else -1. Empty IDs and Numbers never match.
func findMatch(list []Inject, in Inject) int {
	if in.ID != "" {
		for i := range list {
			if list[i].ID == in.ID {
				return i
			}
		}
	}
	if in.Number != "" {
		for i := range list {
			if list[i].Number == in.Number {
				return i
			}
		}
	}
	return -1
}
