package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSessionStart(ChannelBrowser)
	m.RecordSessionEnd(ChannelBrowser, "ok", time.Second)
	m.RecordTurn(ChannelPhone, "voice", false, time.Millisecond)
	m.RecordEscalation("sos", "sent")
	m.RecordEvidence("end_session", nil)
	m.RecordFailure(ChannelBrowser, "")
	if m.Registry() != nil {
		t.Fatalf("nil metrics must have nil registry")
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New("")
	m.RecordSessionStart(ChannelBrowser)
	m.RecordSessionStart(ChannelBrowser)
	m.RecordSessionEnd(ChannelBrowser, "ok", 3*time.Second)
	if got := testutil.ToFloat64(m.SessionsActive.WithLabelValues(ChannelBrowser)); got != 1 {
		t.Fatalf("sessions_active=%v, want 1", got)
	}

	m.RecordTurn(ChannelBrowser, "text", true, 0)
	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues(ChannelBrowser, "text", "true")); got != 1 {
		t.Fatalf("turns_total=%v, want 1", got)
	}

	m.RecordEvidence("safe_word", errors.New("db down"))
	if got := testutil.ToFloat64(m.EvidenceReports.WithLabelValues("safe_word", "error")); got != 1 {
		t.Fatalf("evidence_reports_total=%v, want 1", got)
	}

	m.RecordFailure(ChannelPhone, "")
	if got := testutil.ToFloat64(m.CollaboratorFails.WithLabelValues(ChannelPhone, "unknown")); got != 1 {
		t.Fatalf("collaborator_failures_total=%v, want 1", got)
	}

	m.RecordAudio(ChannelPhone, "out", 0)
	m.RecordAudio(ChannelPhone, "out", 160)
	if got := testutil.ToFloat64(m.AudioBytesTotal.WithLabelValues(ChannelPhone, "out")); got != 160 {
		t.Fatalf("audio_bytes_total=%v, want 160", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New("calyx")
	m.RecordEscalation("SOS button", "sent")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `calyx_escalations_total{outcome="sent",reason="SOS button"} 1`) {
		t.Fatalf("metrics body missing escalation counter:\n%s", body)
	}
}
