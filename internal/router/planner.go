package router

// Planner turns a run request into an ordered plan. It is a pluggable
// collaborator; the default PassthroughPlanner simply returns
// request.PlanOverride verbatim. This seam exists only so a host can
// substitute a real planner without touching the Router.
type Planner interface {
	Plan(req *RunRequest) ([]PlanStep, error)
}

// PassthroughPlanner is the default Planner: the plan is exactly
// request.PlanOverride.
type PassthroughPlanner struct{}

func (PassthroughPlanner) Plan(req *RunRequest) ([]PlanStep, error) {
	return req.PlanOverride, nil
}
