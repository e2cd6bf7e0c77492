package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.MarketsDecoded.Inc()
	m.Decisions.WithLabelValues("accepted", "fast").Inc()

	if got := testutil.ToFloat64(m.MarketsDecoded); got != 1 {
		t.Errorf("MarketsDecoded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("accepted", "fast")); got != 1 {
		t.Errorf("Decisions = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
}

func TestRecordDecision(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.Rejections.WithLabelValues("low_score"))
	RecordDecision(false, false, "low_score")
	RecordDecision(true, false, "")

	after := testutil.ToFloat64(DefaultMetrics.Rejections.WithLabelValues("low_score"))
	if after-before != 1 {
		t.Errorf("rejections delta = %v, want 1", after-before)
	}
}

func TestSetStreamConnected(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.StreamReconnects)

	SetStreamConnected(true)
	if got := testutil.ToFloat64(DefaultMetrics.StreamConnected); got != 1 {
		t.Errorf("StreamConnected = %v, want 1", got)
	}

	SetStreamConnected(false)
	if got := testutil.ToFloat64(DefaultMetrics.StreamConnected); got != 0 {
		t.Errorf("StreamConnected = %v, want 0", got)
	}
	if got := testutil.ToFloat64(DefaultMetrics.StreamReconnects) - before; got != 1 {
		t.Errorf("reconnects delta = %v, want 1", got)
	}
}

func TestRecordRPCCall(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.RPCCallErrors.WithLabelValues("getAccountInfo"))
	RecordRPCCall("getAccountInfo", 0.01, nil)
	RecordRPCCall("getAccountInfo", 0.02, errors.New("boom"))

	after := testutil.ToFloat64(DefaultMetrics.RPCCallErrors.WithLabelValues("getAccountInfo"))
	if after-before != 1 {
		t.Errorf("rpc errors delta = %v, want 1", after-before)
	}
}
