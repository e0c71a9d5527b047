package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_SingletonAcrossCalls(t *testing.T) {
	ResetForTesting()
	first := NewCollector("test")
	second := NewCollector("other")
	assert.Same(t, first, second, "the collector is process-wide")
}

func TestCollector_ObserveHTTPRequest(t *testing.T) {
	ResetForTesting()
	collector := NewCollector("test")

	collector.ObserveHTTPRequest("GET", "/canvases", "200", 0)
	collector.ObserveHTTPRequest("GET", "/canvases", "200", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET", "/canvases", "200")))
}

func TestRegisterCanvasGauges_SamplesAtScrape(t *testing.T) {
	ResetForTesting()
	collector := NewCollector("test")

	samples := []CanvasGauges{
		{CanvasID: "c1", StaleCards: 2, UndoDepth: 3, RedoDepth: 1},
	}
	collector.RegisterCanvasGauges(func() []CanvasGauges { return samples })

	expected := `
# HELP test_stale_cards Number of stale cards on an open canvas
# TYPE test_stale_cards gauge
test_stale_cards{canvas="c1"} 2
`
	require.NoError(t, testutil.GatherAndCompare(
		collector.GetRegistry(), strings.NewReader(expected), "test_stale_cards"))

	// The source is re-read on every scrape, so a closed canvas simply
	// stops appearing and a new one shows up without cleanup.
	samples = []CanvasGauges{
		{CanvasID: "c2", StaleCards: 0, UndoDepth: 0, RedoDepth: 0},
	}
	expected = `
# HELP test_history_undo_depth Undo steps available on an open canvas
# TYPE test_history_undo_depth gauge
test_history_undo_depth{canvas="c2"} 0
`
	require.NoError(t, testutil.GatherAndCompare(
		collector.GetRegistry(), strings.NewReader(expected), "test_history_undo_depth"))
}
