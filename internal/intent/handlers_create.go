package intent

import (
	"time"

	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/model"
	"github.com/apply-task/taskengine/internal/repository"
)

func focusFor(item *model.Item) repository.Focus {
	return repository.Focus{Task: item.ID, Domain: item.Domain}
}

func stringList(raw map[string]any, key string) []string {
	v, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, e := range v {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// handleCreate creates a new Plan or Task item per §4.3.4's creation
// table. kind defaults to "task".
func handleCreate(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	title, _ := req.Raw["title"].(string)
	if title == "" {
		return errorResponse(req.Intent, errs.New(errs.InvalidRequest, "create requires title"))
	}
	kind, _ := req.Raw["kind"].(string)
	if kind == "" {
		kind = "task"
	}

	var id string
	var err error
	var itemKind model.Kind
	if kind == "plan" {
		id, err = d.Repo.NextPlanID()
		itemKind = model.KindPlan
	} else {
		id, err = d.Repo.NextID()
		itemKind = model.KindTask
	}
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "allocate id: %v", err))
	}

	now := time.Now().UTC()
	item := &model.Item{
		ID: id, Kind: itemKind, Title: title, Status: model.StatusTODO,
		Priority: model.PriorityMedium, Domain: firstString(req.Raw, "domain"),
		Parent: firstString(req.Raw, "parent"), Description: firstString(req.Raw, "description"),
		SuccessCriteria: stringList(req.Raw, "success_criteria"),
		Tags:            stringList(req.Raw, "tags"),
		DependsOn:       stringList(req.Raw, "depends_on"),
		Created:         now, Updated: now,
		Events: []model.Event{{EventType: model.EventCreated, Timestamp: now, Actor: model.ActorAI}},
	}
	if p, _ := req.Raw["priority"].(string); p != "" {
		item.Priority = model.Priority(p)
	}
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", id, err))
	}
	if err := d.Focus.Set(focusFor(item)); err != nil {
		resp.withWarning("failed to update focus pointer")
	}
	return resp.ok().withResult(map[string]any{itemEnvelopeKey(item): itemToMap(item)})
}

func firstString(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// handleScaffold creates a Plan together with an initial set of child
// Tasks in one call, per §4.3.4.
func handleScaffold(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	title, _ := req.Raw["title"].(string)
	if title == "" {
		return errorResponse(req.Intent, errs.New(errs.InvalidRequest, "scaffold requires title"))
	}
	planID, err := d.Repo.NextPlanID()
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "allocate plan id: %v", err))
	}
	now := time.Now().UTC()
	plan := &model.Item{
		ID: planID, Kind: model.KindPlan, Title: title, Status: model.StatusTODO,
		Priority: model.PriorityMedium, Description: firstString(req.Raw, "description"),
		Created: now, Updated: now,
		Events: []model.Event{{EventType: model.EventCreated, Timestamp: now, Actor: model.ActorAI}},
	}
	taskTitles := stringList(req.Raw, "tasks")
	var taskSummaries []map[string]any
	for _, tt := range taskTitles {
		taskID, err := d.Repo.NextID()
		if err != nil {
			return errorResponse(req.Intent, errs.New(errs.InternalError, "allocate task id: %v", err))
		}
		tnow := time.Now().UTC()
		task := &model.Item{
			ID: taskID, Kind: model.KindTask, Title: tt, Status: model.StatusTODO,
			Priority: model.PriorityMedium, Parent: planID,
			Created: tnow, Updated: tnow,
			Events: []model.Event{{EventType: model.EventCreated, Timestamp: tnow, Actor: model.ActorAI}},
		}
		if err := d.Repo.Save(task); err != nil {
			return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", taskID, err))
		}
		plan.PlanSteps = append(plan.PlanSteps, taskID)
		taskSummaries = append(taskSummaries, map[string]any{"id": task.ID, "title": task.Title})
	}
	if err := d.Repo.Save(plan); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", planID, err))
	}
	if err := d.Focus.Set(focusFor(plan)); err != nil {
		resp.withWarning("failed to update focus pointer")
	}
	return resp.ok().withResult(map[string]any{
		"plan": itemToMap(plan), "tasks": taskSummaries,
	})
}

// handleDecompose appends a Step tree to the resolved task, per §4.3.4.
// Accepts `steps` as a list of {title, success_criteria, tests, blockers}.
func handleDecompose(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "task")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	rawSteps, _ := req.Raw["steps"].([]any)
	if len(rawSteps) == 0 {
		return errorResponse(req.Intent, errs.New(errs.InvalidSteps, "decompose requires a non-empty steps list"))
	}
	var added []map[string]any
	for _, rs := range rawSteps {
		m, ok := rs.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		if title == "" {
			return errorResponse(req.Intent, errs.New(errs.InvalidSteps, "each step requires a title"))
		}
		step := model.Step{
			ID: model.NewStepID(), Title: title,
			SuccessCriteria: stringList(m, "success_criteria"),
			Tests:           stringList(m, "tests"),
			Blockers:        stringList(m, "blockers"),
			Checkpoints:     model.NewCheckpoints(),
		}
		if len(step.Tests) == 0 {
			step.Checkpoints[model.CheckpointTests].AutoConfirmed = true
		}
		item.Steps = append(item.Steps, step)
		added = append(added, map[string]any{"id": step.ID, "title": step.Title})
	}
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{"task": itemToMap(item), "steps_added": added})
}

// handleTaskAdd appends a TaskNode under a Step's PlanNode, per §4.3.4.
func handleTaskAdd(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "task")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	if req.Path == "" {
		return errorResponse(req.Intent, errs.New(errs.InvalidPath, "task_add requires path to a step"))
	}
	step, serr := model.ResolveStep(item.Steps, req.Path)
	if serr != nil {
		return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", serr))
	}
	title, _ := req.Raw["title"].(string)
	if title == "" {
		return errorResponse(req.Intent, errs.New(errs.InvalidRequest, "task_add requires title"))
	}
	if step.Plan == nil {
		step.Plan = &model.PlanNode{}
	}
	node := model.TaskNode{ID: model.NewTaskNodeID(), Title: title, Status: model.StatusTODO}
	step.Plan.Tasks = append(step.Plan.Tasks, node)
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{"task": itemToMap(item), "node": map[string]any{"id": node.ID, "title": node.Title}})
}

// handleTaskDefine sets a TaskNode's nested Step tree (its own
// success_criteria-bearing sub-steps), per §4.3.4.
func handleTaskDefine(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "task")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	if req.Path == "" || !model.EndsInTaskNode(req.Path) {
		return errorResponse(req.Intent, errs.New(errs.InvalidPath, "task_define requires a path ending in a task node"))
	}
	node, nerr := model.ResolveTaskNode(item.Steps, req.Path)
	if nerr != nil {
		return errorResponse(req.Intent, errs.New(errs.TaskNodeIDNotFound, "%v", nerr))
	}
	rawSteps, _ := req.Raw["steps"].([]any)
	var steps []model.Step
	for _, rs := range rawSteps {
		m, ok := rs.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		steps = append(steps, model.Step{
			ID: model.NewStepID(), Title: title,
			SuccessCriteria: stringList(m, "success_criteria"),
			Tests:           stringList(m, "tests"),
			Checkpoints:     model.NewCheckpoints(),
		})
	}
	for i := range steps {
		if len(steps[i].Tests) == 0 {
			steps[i].Checkpoints[model.CheckpointTests].AutoConfirmed = true
		}
	}
	node.Steps = steps
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{"task": itemToMap(item), "node_id": node.ID, "steps_defined": len(steps)})
}
