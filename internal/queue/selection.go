package queue

import "github.com/queueforge/ciqueue/internal/ciqtask"

const largeDeploymentThreshold = 10
const offloadDurationThreshold = 15 * 60 // seconds, see choose() S4

// choose implements the selection policy (spec §4.5). Must be called with
// q.mu held; it never blocks.
func (q *Queue) choose(task ciqtask.Task) *JobOffer {
	// S1: global quiesce.
	if q.env != nil && q.env.IsQuietingDown() {
		return nil
	}

	large := q.env != nil && q.env.AgentCount() > largeDeploymentThreshold

	// S2: labelled task.
	if label := task.Label(); label != "" {
		for _, offer := range q.parked {
			if offer.available() && offer.Executor.Owner.HasLabel(label) {
				return offer
			}
		}
		return nil // a labelled task may not fall through
	}

	// S3: affinity to last-built-on.
	if last := task.LastBuiltOn(); last != "" {
		var nonControllerMatch, controllerMatch *JobOffer
		for _, offer := range q.parked {
			if !offer.available() || offer.Executor.Owner.Name != last || !offer.Executor.Owner.NonExclusive() {
				continue
			}
			if offer.Executor.Owner.IsController {
				controllerMatch = offer
			} else {
				nonControllerMatch = offer
			}
		}
		if nonControllerMatch != nil {
			return nonControllerMatch
		}
		if controllerMatch != nil && !large {
			return controllerMatch
		}
		// fall through to S4/S5
	}

	// S4: offload heuristic.
	avoidController := large || task.EstimatedDuration().Seconds() > offloadDurationThreshold
	if avoidController {
		for _, offer := range q.parked {
			if offer.available() && offer.Executor.Owner.NonExclusive() && !offer.Executor.Owner.IsController {
				return offer
			}
		}
		// No non-controller offer was available: the offload heuristic
		// forbids falling back to the controller (spec E5).
		return nil
	}

	// S5: any fit.
	for _, offer := range q.parked {
		if offer.available() && offer.Executor.Owner.NonExclusive() {
			return offer
		}
	}
	return nil
}
