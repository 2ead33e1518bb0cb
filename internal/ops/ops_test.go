package ops

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Waaajid/chatbotwiteditrequests/internal/config"
	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/llm"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/metrics"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

// fakeCompleter returns a canned reply and records what it was sent.
type fakeCompleter struct {
	mu      sync.Mutex
	reply   llm.ResponseMessage
	err     error
	calls   int
	lastKey string
	lastReq llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, apiKey string, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastKey = apiKey
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Choices: []llm.Choice{{Message: f.reply}}}, nil
}

func newTestDeps(t *testing.T, completer llm.Completer) Deps {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.APIKey = "sk-test"
	cfg.AllowedPaths = []string{t.TempDir()}
	return Deps{
		Sessions: session.NewMemoryStore(),
		Config:   cfg,
		LLM:      completer,
		Metrics:  metrics.NewCollector("melchat_test"),
	}
}

// seedSession stores a session whose current document holds n numbered injects.
func seedSession(t *testing.T, d Deps, id string, n int) *session.Session {
	t.Helper()
	injects := make([]mel.Inject, n)
	for i := range injects {
		n := strconv.Itoa(i + 1)
		injects[i] = mel.Inject{Number: mel.Number(n), Serial: "Event A", Subject: "Subject " + n, Message: "Body " + n}
	}
	sess := session.New(id)
	sess.Record(mel.Build(injects, ""), session.FullCreation, 0)
	if err := d.Sessions.Put(context.Background(), sess); err != nil {
		t.Fatalf("seed Put() error = %v", err)
	}
	return sess
}

func userTurn(content string) []session.Message {
	return []session.Message{{Role: "user", Content: content}}
}

func TestRequireSessionID(t *testing.T) {
	if _, err := requireSessionID("  "); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("requireSessionID(blank) error = %v, want INVALID_REQUEST", err)
	}
	id, err := requireSessionID(" abc ")
	if err != nil || id != "abc" {
		t.Errorf("requireSessionID(\" abc \") = %q, %v", id, err)
	}
}

func TestResolveMode(t *testing.T) {
	existing := mel.Build([]mel.Inject{{Number: "1"}, {Number: "2"}}, "")

	tests := []struct {
		requested    string
		incoming     int
		wantMode     mel.Mode
		wantInferred bool
	}{
		{"", 1, mel.ModeMerge, true},
		{"auto", 2, mel.ModeReplace, true},
		{"merge", 5, mel.ModeMerge, false},
		{"replace", 1, mel.ModeReplace, false},
	}
	for _, tc := range tests {
		mode, inferred, err := resolveMode(tc.requested, existing, tc.incoming)
		if err != nil {
			t.Fatalf("resolveMode(%q) error = %v", tc.requested, err)
		}
		if mode != tc.wantMode || inferred != tc.wantInferred {
			t.Errorf("resolveMode(%q, %d) = %s/%v, want %s/%v", tc.requested, tc.incoming, mode, inferred, tc.wantMode, tc.wantInferred)
		}
	}

	if _, _, err := resolveMode("upsert", existing, 1); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("resolveMode(upsert) error = %v, want INVALID_REQUEST", err)
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultListLimit, 0},
		{500, -3, MaxListLimit, 0},
		{5, 10, 5, 10},
	}
	for _, tc := range tests {
		l, o := normalizePage(tc.limit, tc.offset)
		if l != tc.wantLimit || o != tc.wantOffset {
			t.Errorf("normalizePage(%d, %d) = %d, %d; want %d, %d", tc.limit, tc.offset, l, o, tc.wantLimit, tc.wantOffset)
		}
	}
}

func TestDuplicateWarnings(t *testing.T) {
	existing := mel.Build([]mel.Inject{{Number: "1"}, {Number: "1"}, {Number: "2"}}, "")

	warnings := duplicateWarnings(existing, []mel.Inject{{Number: "2"}}, mel.ModeMerge)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "Number 1") {
		t.Errorf("merge warnings = %v, want one about Number 1", warnings)
	}

	if warnings := duplicateWarnings(existing, []mel.Inject{{Number: "2"}}, mel.ModeReplace); len(warnings) != 0 {
		t.Errorf("replace warnings = %v, want none", warnings)
	}
}
