package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_CountsAndExposes(t *testing.T) {
	c := NewCollector("melchat")

	c.ObserveHTTP("GET", "/api/sessions", 200, 10*time.Millisecond)
	c.RecordVersion("full_creation")
	c.RecordVersion("partial_update")
	c.RecordVersion("partial_update")
	c.RecordChatTurn("merge")
	c.ObserveUpstream(200, time.Second)
	c.ObserveUpstream(429, time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(c.Versions.WithLabelValues("partial_update")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.UpstreamErrors.WithLabelValues("429")))
	require.Equal(t, 0.0, testutil.ToFloat64(c.UpstreamErrors.WithLabelValues("200")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	require.True(t, strings.Contains(string(body), "melchat_mel_versions_total"))
	require.True(t, strings.Contains(string(body), "melchat_chat_turns_total"))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.ObserveHTTP("GET", "/", 200, 0)
	c.RecordVersion("user_edit")
	c.RecordChatTurn("none")
	c.RecordDuplicateNumbers()
	c.ObserveUpstream(500, 0)
}

func TestNewCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("melchat")
	b := NewCollector("melchat")
	a.RecordVersion("user_edit")
	require.Equal(t, 0.0, testutil.ToFloat64(b.Versions.WithLabelValues("user_edit")))
}
