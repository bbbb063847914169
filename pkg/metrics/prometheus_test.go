package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"TokenPulse/internal/domain/models"
)

func TestRecorderStateGauge(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordState("mint", models.StateConnecting)
	r.RecordState("mint", models.StateSubscribed)

	if v := testutil.ToFloat64(r.state.WithLabelValues("mint", string(models.StateSubscribed))); v != 1 {
		t.Fatalf("subscribed gauge %v", v)
	}
	if v := testutil.ToFloat64(r.state.WithLabelValues("mint", string(models.StateConnecting))); v != 0 {
		t.Fatalf("connecting gauge %v", v)
	}
	if v := testutil.ToFloat64(r.transitions.WithLabelValues("mint", string(models.StateConnecting))); v != 1 {
		t.Fatalf("transitions %v", v)
	}
}

func TestRecorderCounters(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordEvent("mint")
	r.RecordEvent("mint")
	r.RecordRejected("mint", "duplicate")
	r.RecordArchived("kafka", "mint")
	r.RecordBufferSize("mint", 42)

	if v := testutil.ToFloat64(r.events.WithLabelValues("mint")); v != 2 {
		t.Fatalf("events %v", v)
	}
	if v := testutil.ToFloat64(r.rejected.WithLabelValues("mint", "duplicate")); v != 1 {
		t.Fatalf("rejected %v", v)
	}
	if v := testutil.ToFloat64(r.archived.WithLabelValues("kafka", "mint")); v != 1 {
		t.Fatalf("archived %v", v)
	}
	if v := testutil.ToFloat64(r.bufferSize.WithLabelValues("mint")); v != 42 {
		t.Fatalf("buffer size %v", v)
	}
}
