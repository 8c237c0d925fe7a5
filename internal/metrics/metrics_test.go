package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCountsAccumulate(t *testing.T) {
	m := New()

	m.RecordCounts(5, 3, 2)
	m.RecordCounts(2, 1, 1)

	if got := testutil.ToFloat64(m.LeadsFound); got != 7 {
		t.Errorf("expected leads_found_total 7, got %v", got)
	}
	if got := testutil.ToFloat64(m.EmailsFound); got != 4 {
		t.Errorf("expected emails_found_total 4, got %v", got)
	}
	if got := testutil.ToFloat64(m.LeadsValidated); got != 3 {
		t.Errorf("expected leads_validated_total 3, got %v", got)
	}
}

func TestRecordRunCompleted(t *testing.T) {
	m := New()

	m.RecordRunCompleted(2*time.Second, true)
	m.RecordRunCompleted(time.Second, false)

	if got := testutil.ToFloat64(m.WorkflowSuccesses); got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.WorkflowFailures); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
}

func TestRecordStageOutcomes(t *testing.T) {
	m := New()

	m.RecordStage("finding", 100*time.Millisecond, "success")
	m.RecordStage("finding", 200*time.Millisecond, "success")
	m.RecordStage("validating", 50*time.Millisecond, "degraded")

	if got := testutil.ToFloat64(m.StageOutcomes.WithLabelValues("finding", "success")); got != 2 {
		t.Errorf("expected 2 finding successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.StageOutcomes.WithLabelValues("validating", "degraded")); got != 1 {
		t.Errorf("expected 1 degraded validation, got %v", got)
	}
}

func TestSeparateInstancesDoNotCollide(t *testing.T) {
	a := New()
	b := New()

	a.RecordCounts(1, 0, 0)
	if got := testutil.ToFloat64(b.LeadsFound); got != 0 {
		t.Errorf("expected independent registries, got %v", got)
	}
}
