package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetd-io/fleetd/internal/record"
)

func TestSelectBest_HighestScoreWins(t *testing.T) {
	statuses := map[string]record.Status{
		"main":   record.StatusReady,
		"htpc":   record.StatusReady,
		"laptop": record.StatusOffline,
	}
	scores := map[string]int{"main": 130, "htpc": 60, "laptop": 9}

	assert.Equal(t, "main", SelectBest(statuses, scores, "main"))
}

func TestSelectBest_SkipsNotReady(t *testing.T) {
	statuses := map[string]record.Status{
		"main":   record.StatusOffline,
		"htpc":   record.StatusReady,
		"laptop": record.StatusBusy,
	}
	scores := map[string]int{"main": 130, "htpc": 60, "laptop": 9}

	// The strongest node is down and busy does not count as available.
	assert.Equal(t, "htpc", SelectBest(statuses, scores, "main"))
}

func TestSelectBest_FallbackWhenNoneReady(t *testing.T) {
	statuses := map[string]record.Status{
		"main": record.StatusError,
		"htpc": record.StatusOffline,
	}
	scores := map[string]int{"main": 130, "htpc": 60}

	assert.Equal(t, "main", SelectBest(statuses, scores, "main"))
}

func TestSelectBest_EmptyInputs(t *testing.T) {
	assert.Equal(t, "fallback", SelectBest(nil, nil, "fallback"))
	assert.Equal(t, "fallback", SelectBest(map[string]record.Status{}, map[string]int{}, "fallback"))
}

func TestSelectBest_UnknownStatusIsNotReady(t *testing.T) {
	// A node in scores but absent from the snapshot has zero-value
	// status and must not be selected.
	statuses := map[string]record.Status{"htpc": record.StatusReady}
	scores := map[string]int{"main": 130, "htpc": 60}

	assert.Equal(t, "htpc", SelectBest(statuses, scores, "main"))
}

func TestSelectBest_TieBreaksByNodeID(t *testing.T) {
	statuses := map[string]record.Status{
		"beta":  record.StatusReady,
		"alpha": record.StatusReady,
	}
	scores := map[string]int{"beta": 60, "alpha": 60}

	for i := 0; i < 20; i++ {
		assert.Equal(t, "alpha", SelectBest(statuses, scores, "x"))
	}
}
