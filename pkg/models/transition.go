package models

// Branch labels produced by steps to tag their outgoing transitions.
const (
	BranchYes     = "yes"
	BranchNo      = "no"
	BranchTimeout = "timeout"
)

// WorkflowTransition is a directed, optionally branch-tagged edge between
// two steps. An empty branch marks the default edge followed by steps that
// produce no branch label.
type WorkflowTransition struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	FromStepID string `json:"from_step_id" validate:"required"`
	ToStepID   string `json:"to_step_id"   validate:"required"`
	Branch     string `json:"branch,omitempty"`
	Priority   int    `json:"priority"`
}
