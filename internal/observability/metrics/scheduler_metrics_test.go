package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSchedulerMetricsRegisterOnce(t *testing.T) {
	ResetSchedulerMetricsForTest()
	t.Cleanup(ResetSchedulerMetricsForTest)

	first := SchedulerWithConfig(Config{ServiceName: "roamsight", Environment: "test"})
	second := Scheduler()
	if first != second {
		t.Fatalf("expected singleton scheduler metrics")
	}
}

func TestNewSchedulerMetricsIsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newSchedulerMetrics(reg, Config{ServiceName: "roamsight", Environment: "test"})

	m.ObserveJob(SchedulerJobBackfill, SchedulerOutcomeOK, 120*time.Millisecond)
	m.ObserveJob(SchedulerJobDetection, SchedulerOutcomeTimeout, time.Second)
	m.AddBatchProcessed(SchedulerJobBackfill, 3)
	m.TickSkipped(SchedulerJobDetection)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected registered metric families")
	}
}

func TestOutcomeForError(t *testing.T) {
	if got := OutcomeForError(nil); got != SchedulerOutcomeOK {
		t.Fatalf("nil error: got %s", got)
	}
	if got := OutcomeForError(context.DeadlineExceeded); got != SchedulerOutcomeTimeout {
		t.Fatalf("deadline: got %s", got)
	}
	if got := OutcomeForError(errors.New("boom")); got != SchedulerOutcomeError {
		t.Fatalf("generic: got %s", got)
	}
}
