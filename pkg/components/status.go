package components

import (
	"github.com/fleetconf/shepherd/pkg/types"
)

// layerKey identifies a layer by its content coordinates. State entries
// and configuration layers are matched on this key.
type layerKey struct {
	cloneURL string
	playbook string
}

// Aggregate derives the configuration status of a component from its
// recorded layer results and the layers its desired configuration calls
// for. The rule, in priority order:
//
//   - no desired configuration, or nothing run against it yet: pending
//   - any failed layer result: failed
//   - any incomplete result, or fewer successful results than the
//     configuration defines: incomplete
//   - otherwise: success
//
// want holds the resolved layer keys of the desired configuration; a nil
// slice means the configuration could not be resolved and only the
// recorded results are judged.
func Aggregate(c *types.Component, want []layerKey) types.ComponentStatus {
	if c.DesiredConfig == "" || len(c.State) == 0 {
		return types.StatusPending
	}

	results := make(map[layerKey]types.LayerOutcome, len(c.State))
	anyFailed := false
	anyIncomplete := false
	for _, lr := range c.State {
		k := layerKey{cloneURL: lr.CloneURL, playbook: lr.Playbook}
		results[k] = lr.Status
		switch lr.Status {
		case types.LayerFailed:
			anyFailed = true
		case types.LayerIncomplete:
			anyIncomplete = true
		}
	}

	if len(want) > 0 {
		matched := 0
		succeeded := 0
		for _, k := range want {
			outcome, ok := results[k]
			if !ok {
				continue
			}
			matched++
			if outcome == types.LayerSuccess {
				succeeded++
			}
		}
		// Results on record, but none for the current configuration.
		if matched == 0 {
			return types.StatusPending
		}
		if anyFailed {
			return types.StatusFailed
		}
		if succeeded < len(want) {
			return types.StatusIncomplete
		}
		return types.StatusSuccess
	}

	if anyFailed {
		return types.StatusFailed
	}
	if anyIncomplete {
		return types.StatusIncomplete
	}
	return types.StatusSuccess
}
