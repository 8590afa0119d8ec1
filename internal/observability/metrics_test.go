package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHelpers(t *testing.T) {
	RecordGraph("0.0.1", 10, 20, 2, 1)
	if got := testutil.ToFloat64(DefaultMetrics.GraphNodes.WithLabelValues("0.0.1")); got != 10 {
		t.Errorf("Expected 10 nodes, got %v", got)
	}

	before := testutil.ToFloat64(DefaultMetrics.LayoutSettles)
	RecordLayoutTick(false)
	RecordLayoutTick(true)
	if got := testutil.ToFloat64(DefaultMetrics.LayoutSettles); got != before+1 {
		t.Errorf("Expected one settle recorded, got %v", got-before)
	}

	errsBefore := testutil.ToFloat64(DefaultMetrics.AnalysisCallErrors.WithLabelValues("status"))
	RecordAnalysisCall("status", 0.1, errors.New("boom"))
	if got := testutil.ToFloat64(DefaultMetrics.AnalysisCallErrors.WithLabelValues("status")); got != errsBefore+1 {
		t.Errorf("Expected error counted, got %v", got-errsBefore)
	}
}
