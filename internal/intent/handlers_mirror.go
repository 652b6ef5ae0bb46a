package intent

import (
	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/model"
)

// handleMirror returns a tree/list view at the requested scope, per
// §4.3.4: plan -> tasks, task -> steps, and, when a step path is given,
// step -> task-nodes. In the task view the first incomplete step is shown
// as in_progress (display-only; no mutation).
func handleMirror(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	if item.IsPlan() {
		children, _ := d.Repo.List("")
		var tasks []map[string]any
		for _, c := range children {
			if c.Parent == item.ID {
				tasks = append(tasks, map[string]any{"id": c.ID, "title": c.Title, "status": c.Status})
			}
		}
		return resp.ok().withResult(map[string]any{"scope": "plan", "tasks": tasks})
	}
	if req.Path != "" {
		step, serr := model.ResolveStep(item.Steps, req.Path)
		if serr != nil {
			return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", serr))
		}
		nodes := make([]map[string]any, 0)
		if step.Plan != nil {
			for _, tn := range step.Plan.Tasks {
				nodes = append(nodes, map[string]any{"id": tn.ID, "title": tn.Title, "status": tn.Status})
			}
		}
		return resp.ok().withResult(map[string]any{"scope": "step", "task_nodes": nodes})
	}
	return resp.ok().withResult(map[string]any{"scope": "task", "steps": mirrorSteps(item.Steps)})
}

func mirrorSteps(steps []model.Step) []map[string]any {
	out := make([]map[string]any, 0, len(steps))
	activeAssigned := false
	for i := range steps {
		s := &steps[i]
		state := "pending"
		if s.Completed {
			state = "done"
		} else if !activeAssigned {
			state = "in_progress"
			activeAssigned = true
		}
		entry := map[string]any{"id": s.ID, "title": s.Title, "state": state, "blocked": s.Blocked}
		if s.Plan != nil && len(s.Plan.Tasks) > 0 {
			nodes := make([]map[string]any, 0, len(s.Plan.Tasks))
			for _, tn := range s.Plan.Tasks {
				nodes = append(nodes, map[string]any{"id": tn.ID, "title": tn.Title, "status": tn.Status})
			}
			entry["task_nodes"] = nodes
		}
		out = append(out, entry)
	}
	return out
}
