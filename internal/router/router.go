// Package router selects the best available node for a unit of work.
//
// Selection is a pure function of a liveness snapshot plus static
// capability scores: no I/O, no state. Capability (e.g. a tokens-per-
// second benchmark) is configuration, not registry state, and is joined
// in here at decision time.
package router

import (
	"sort"

	"github.com/fleetd-io/fleetd/internal/record"
)

// SelectBest returns the ready candidate with the highest capability
// score. Ties break by node id ascending so the choice is deterministic
// for identical inputs. With no ready candidates the fallback id is
// returned - the system always has an opinion.
func SelectBest(statuses map[string]record.Status, scores map[string]int, fallbackID string) string {
	type candidate struct {
		nodeID string
		score  int
	}

	var ready []candidate
	for nodeID, score := range scores {
		if statuses[nodeID] == record.StatusReady {
			ready = append(ready, candidate{nodeID: nodeID, score: score})
		}
	}

	if len(ready) == 0 {
		return fallbackID
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].score != ready[j].score {
			return ready[i].score > ready[j].score
		}
		return ready[i].nodeID < ready[j].nodeID
	})

	return ready[0].nodeID
}
