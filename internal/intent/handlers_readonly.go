package intent

import (
	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/history"
	"github.com/apply-task/taskengine/internal/model"
	"github.com/apply-task/taskengine/internal/repository"
)

func handleContext(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	items, err := d.Repo.List("")
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "list items: %v", err))
	}
	var plans, tasks []*model.Item
	for _, it := range items {
		if it.IsPlan() {
			plans = append(plans, it)
		} else {
			tasks = append(tasks, it)
		}
	}
	tasks = filterTasks(tasks, req.Raw)
	result := map[string]any{
		"plans_count": len(plans),
		"tasks_count": len(tasks),
	}
	if full, _ := req.Raw["full"].(bool); full {
		result["plans"] = summarizeItems(plans)
		result["tasks"] = summarizeItems(tasks)
	}
	if sub, ok := req.Raw["subtree"].(map[string]any); ok {
		subtree, serr := resolveSubtree(d, sub)
		if serr != nil {
			return errorResponse(req.Intent, serr)
		}
		result["subtree"] = subtree
	}
	return resp.ok().withResult(result)
}

func filterTasks(tasks []*model.Item, raw map[string]any) []*model.Item {
	status, _ := raw["tasks_status"].(string)
	domain, _ := raw["domain"].(string)
	parent, _ := raw["tasks_parent"].(string)
	var tags []string
	if rawTags, ok := raw["tags"].([]any); ok {
		for _, t := range rawTags {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	out := tasks[:0:0]
	for _, t := range tasks {
		if status != "" && string(t.Status) != status {
			continue
		}
		if domain != "" && t.Domain != domain {
			continue
		}
		if parent != "" && t.Parent != parent {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(t.Tags, tags) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func hasAnyTag(itemTags, want []string) bool {
	set := map[string]bool{}
	for _, t := range itemTags {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

func summarizeItems(items []*model.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"id": it.ID, "title": it.Title, "status": it.Status, "domain": it.Domain,
			"revision": it.Revision,
		})
	}
	return out
}

func resolveSubtree(d *Dispatcher, sub map[string]any) (map[string]any, *errs.Error) {
	taskID, _ := sub["task"].(string)
	if taskID == "" {
		return nil, errs.New(errs.MissingTask, "subtree requires task")
	}
	item, err := d.Repo.Load(taskID, "")
	if err != nil {
		return nil, errs.New(errs.NotFound, "task %s not found", taskID)
	}
	kind, _ := sub["kind"].(string)
	switch kind {
	case "step", "":
		path, _ := sub["path"].(string)
		if path == "" {
			return map[string]any{"steps": stepSummaries(item.Steps)}, nil
		}
		step, serr := model.ResolveStep(item.Steps, path)
		if serr != nil {
			return nil, errs.New(errs.PathNotFound, "%v", serr)
		}
		return map[string]any{"step": stepSummary(step)}, nil
	default:
		return nil, errs.New(errs.InvalidKind, "unsupported subtree kind %q", kind)
	}
}

func stepSummaries(steps []model.Step) []map[string]any {
	out := make([]map[string]any, 0, len(steps))
	for i := range steps {
		out = append(out, stepSummary(&steps[i]))
	}
	return out
}

func stepSummary(s *model.Step) map[string]any {
	return map[string]any{
		"id": s.ID, "title": s.Title, "completed": s.Completed, "blocked": s.Blocked,
	}
}

func handleFocusGet(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	focus, err := d.Focus.Get()
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "read focus: %v", err))
	}
	return resp.ok().withResult(map[string]any{"task": focus.Task, "domain": focus.Domain})
}

func handleFocusSet(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	target := req.Task
	if target == "" {
		target = req.Plan
	}
	if target == "" {
		return errorResponse(req.Intent, errs.New(errs.MissingTarget, "focus_set requires task or plan"))
	}
	item, err := d.Repo.Load(target, "")
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", target))
	}
	if err := d.Focus.Set(repository.Focus{Task: item.ID, Domain: item.Domain}); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "write focus: %v", err))
	}
	return resp.ok().withResult(map[string]any{"task": item.ID, "domain": item.Domain})
}

func handleFocusClear(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	if err := d.Focus.Clear(); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "clear focus: %v", err))
	}
	return resp.ok().withResult(map[string]any{"cleared": true})
}

func handleTemplatesList(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	return resp.ok().withResult(map[string]any{"templates": templateCatalog()})
}

func handleStorage(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	return resp.ok().withResult(map[string]any{
		"root":      d.Repo.Root,
		"signature": d.Repo.ComputeSignature(),
	})
}

func handleHistory(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	limit, _ := req.Raw["limit"].(float64)
	n := int(limit)
	stream, _ := req.Raw["stream"].(string)
	var ops []history.Operation
	if stream == history.StreamAudit {
		ops = d.History.ListRecentAudit(n)
	} else {
		ops = d.History.ListRecent(n)
	}
	return resp.ok().withResult(map[string]any{"operations": ops})
}

func handleDelta(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	filter := history.DeltaFilter{}
	filter.Since, _ = req.Raw["since"].(string)
	filter.Task = req.Task
	filter.Stream, _ = req.Raw["stream"].(string)
	filter.IncludeUndone, _ = req.Raw["include_undone"].(bool)
	if lim, ok := req.Raw["limit"].(float64); ok {
		filter.Limit = int(lim)
	}
	if intents, ok := req.Raw["intents"].([]any); ok {
		for _, i := range intents {
			if s, ok := i.(string); ok {
				filter.Intents = append(filter.Intents, s)
			}
		}
	}
	if paths, ok := req.Raw["paths"].([]any); ok {
		for _, p := range paths {
			if s, ok := p.(string); ok {
				filter.Paths = append(filter.Paths, s)
			}
		}
	}
	ops, err := d.History.Delta(filter)
	if err != nil {
		if err == history.ErrSinceNotFound {
			return errorResponse(req.Intent, errs.New(errs.SinceNotFound, "since operation not found"))
		}
		return errorResponse(req.Intent, errs.New(errs.DeltaFailed, "%v", err))
	}
	includeDetails, _ := req.Raw["include_details"].(bool)
	if !includeDetails {
		summaries := make([]map[string]any, 0, len(ops))
		for _, op := range ops {
			summaries = append(summaries, map[string]any{
				"id": op.ID, "timestamp": op.Timestamp, "intent": op.Intent,
				"task_id": op.TaskID, "stream": op.Stream, "effect": op.Effect, "undone": op.Undone,
			})
		}
		return resp.ok().withResult(map[string]any{"operations": summaries})
	}
	return resp.ok().withResult(map[string]any{"operations": ops})
}

func handleResumeCompact(item *model.Item, compact bool) map[string]any {
	if compact {
		return map[string]any{"id": item.ID, "title": item.Title, "status": item.Status, "revision": item.Revision}
	}
	return itemToMap(item)
}

func itemToMap(item *model.Item) map[string]any {
	return map[string]any{
		"id": item.ID, "kind": item.Kind, "title": item.Title, "status": string(item.Status),
		"priority": item.Priority, "domain": item.Domain, "parent": item.Parent,
		"description": item.Description, "contract": item.Contract,
		"success_criteria": item.SuccessCriteria, "tests": item.Tests, "blockers": item.Blockers,
		"tags": item.Tags, "depends_on": item.DependsOn, "blocked": item.Blocked,
		"revision": item.Revision, "progress": item.Progress(),
		"plan_current": item.PlanCurrent, "plan_steps": item.PlanSteps,
	}
}

func handleResume(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	compact, _ := req.Raw["compact"].(bool)
	result := handleResumeCompact(item, compact)
	includeSteps, _ := req.Raw["include_steps"].(bool)
	if includeSteps {
		result["steps"] = stepSummaries(item.Steps)
	}
	limit := 10
	if lim, ok := req.Raw["events_limit"].(float64); ok {
		limit = int(lim)
	}
	result["timeline"] = recentEvents(item.Events, limit)
	return resp.ok().withResult(result)
}

func recentEvents(events []model.Event, limit int) []model.Event {
	if limit <= 0 || limit > len(events) {
		limit = len(events)
	}
	start := len(events) - limit
	if start < 0 {
		start = 0
	}
	return events[start:]
}

func templateCatalog() []map[string]any {
	return []map[string]any{
		{"id": "feature", "name": "Feature", "description": "New feature work", "supports": []string{"plan", "task"}},
		{"id": "bugfix", "name": "Bug Fix", "description": "Defect remediation", "supports": []string{"task"}},
		{"id": "refactor", "name": "Refactor", "description": "Internal restructuring with no behavior change", "supports": []string{"task"}},
		{"id": "migration", "name": "Migration", "description": "Data or system migration", "supports": []string{"plan", "task"}},
	}
}
