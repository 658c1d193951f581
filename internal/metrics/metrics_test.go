package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder()
	r.TierAttempt("primary", "failure")
	r.TierAttempt("primary", "failure")
	r.TierAttempt("alternative", "success")
	r.Served("alternative")
	r.QuotaRemaining(42)

	if got := testutil.ToFloat64(r.tierAttempts.WithLabelValues("primary", "failure")); got != 2 {
		t.Fatalf("primary failures=%v, want 2", got)
	}
	if got := testutil.ToFloat64(r.searches.WithLabelValues("alternative")); got != 1 {
		t.Fatalf("served=%v, want 1", got)
	}
	if got := testutil.ToFloat64(r.quotaRemaining); got != 42 {
		t.Fatalf("gauge=%v, want 42", got)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.TierAttempt("primary", "success")
	r.Served("primary")
	r.QuotaRemaining(1)
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("nil write: %v", err)
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Served("embedded")
	path := filepath.Join(t.TempDir(), "gsearch.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), `gsearch_searches_total{source="embedded"} 1`) {
		t.Fatalf("unexpected textfile:\n%s", b)
	}
}
