package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncAskRequests_IncrementsLabelledCounter(t *testing.T) {
	before := testutil.ToFloat64(AskRequestsTotal.WithLabelValues("ok"))
	IncAskRequests("ok")
	after := testutil.ToFloat64(AskRequestsTotal.WithLabelValues("ok"))
	assert.Equal(t, before+1, after)
}

func TestIncMemoryRequest_PartitionsByEndpointAndOutcome(t *testing.T) {
	before := testutil.ToFloat64(MemoryRequestsTotal.WithLabelValues("/api/enrich", "error"))
	IncMemoryRequest("/api/enrich", "error")
	after := testutil.ToFloat64(MemoryRequestsTotal.WithLabelValues("/api/enrich", "error"))
	assert.Equal(t, before+1, after)
}

func TestObserveAskLatency_RecordsIntoHistogram(t *testing.T) {
	var before, after dto.Metric
	require.NoError(t, AskLatencySeconds.Write(&before))
	ObserveAskLatency(120 * time.Millisecond)
	require.NoError(t, AskLatencySeconds.Write(&after))
	assert.Equal(t, before.GetHistogram().GetSampleCount()+1, after.GetHistogram().GetSampleCount())
}
