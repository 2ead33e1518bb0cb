package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/Waaajid/chatbotwiteditrequests/internal/config"
	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/llm"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/metrics"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Deps is what the operations run against.
// LLM is only needed by Chat; Metrics may be nil.
type Deps struct {
	Sessions session.Store
	Config   *config.Config
	LLM      llm.Completer
	Metrics  *metrics.Collector
}

func (d Deps) historyLimit() int {
	if d.Config == nil {
		return config.DefaultConfig().HistoryLimit
	}
	return d.Config.EffectiveHistoryLimit()
}

// requireSessionID trims id and rejects an empty value.
func requireSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("session_id is required")
	}
	return id, nil
}

// loadOrCreate fetches a session, creating an empty one when id is empty or unknown.
func loadOrCreate(ctx context.Context, store session.Store, id string) (*session.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return session.New(""), nil
	}
	sess, err := store.Get(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return session.New(id), nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// resolveMode turns a requested action into a merge mode. An empty request
// falls back to the length heuristic and reports inferred=true.
func resolveMode(requested string, existing *mel.Document, incomingLen int) (mode mel.Mode, inferred bool, err error) {
	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, "auto") {
		return mel.ChooseMode(existing, incomingLen), true, nil
	}
	mode, err = mel.ParseMode(requested)
	if err != nil {
		return "", false, errors.NewInvalidRequest(err.Error())
	}
	return mode, false, nil
}

// applyToSession merges injects into the session's document and records the result.
func applyToSession(d Deps, sess *session.Session, existing *mel.Document, injects []mel.Inject, mode mel.Mode, prov session.Provenance) (*mel.Document, []string, error) {
	warnings := duplicateWarnings(existing, injects, mode)
	if len(warnings) > 0 {
		d.Metrics.RecordDuplicateNumbers()
	}

	doc, err := mel.Merge(existing, injects, mode)
	if err != nil {
		return nil, nil, errors.NewInvalidRequest(err.Error())
	}

	recordVersion(d, sess, doc, prov)
	return doc, warnings, nil
}

// recordVersion appends doc to the session history under prov.
func recordVersion(d Deps, sess *session.Session, doc *mel.Document, prov session.Provenance) {
	sess.Record(doc, prov, d.historyLimit())
	d.Metrics.RecordVersion(string(prov))
}

// duplicateWarnings reports sequence numbers that make merge-by-number ambiguous.
func duplicateWarnings(existing *mel.Document, incoming []mel.Inject, mode mel.Mode) []string {
	var warnings []string
	if mode == mel.ModeMerge && !existing.IsEmpty() {
		for _, n := range mel.DuplicateNumbers(existing.Injects) {
			warnings = append(warnings, fmt.Sprintf("Number %s is used by several injects; only the first is updated by number", n))
		}
	}
	for _, n := range mel.DuplicateNumbers(incoming) {
		warnings = append(warnings, fmt.Sprintf("incoming batch repeats Number %s", n))
	}
	return warnings
}

// normalizePage applies list limit defaults and bounds.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}
