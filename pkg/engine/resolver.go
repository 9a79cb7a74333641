package engine

import "github.com/flowmail/journey/pkg/models"

// ResolveNext picks the step to enter after fromStepID along the given
// branch. Transitions are considered in priority order, ties broken by
// transition ID; a tagged branch with no matching transition falls back to
// the default (untagged) transitions. No match at all means the execution
// has reached the end of the graph.
func ResolveNext(workflow *models.Workflow, fromStepID, branch string) (string, bool) {
	transitions := workflow.TransitionsFrom(fromStepID)

	for _, transition := range transitions {
		if transition.Branch == branch {
			return transition.ToStepID, true
		}
	}

	if branch != "" {
		for _, transition := range transitions {
			if transition.Branch == "" {
				return transition.ToStepID, true
			}
		}
	}

	return "", false
}
