package intent

import (
	"sort"
	"time"

	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/model"
)

// staleAfter is the age past which an item with no updates is surfaced as
// stale by radar.
const staleAfter = 72 * time.Hour

// handleRadar gives a fleet-wide overview: active items, blocked items,
// and items stale past staleAfter, budget-capped per §4.3.4.
func handleRadar(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	items, err := d.Repo.List("")
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "list items: %v", err))
	}

	var active, blocked, stale []map[string]any
	now := itemNow(items)
	for _, it := range items {
		entry := map[string]any{"id": it.ID, "title": it.Title, "status": it.Status, "domain": it.Domain}
		if it.Status == model.StatusActive {
			active = append(active, entry)
		}
		if it.Blocked {
			blocked = append(blocked, map[string]any{"id": it.ID, "title": it.Title, "blockers": it.Blockers})
		}
		if it.Status == model.StatusActive && now.Sub(it.Updated) > staleAfter {
			stale = append(stale, map[string]any{"id": it.ID, "title": it.Title, "updated": it.Updated})
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i]["id"].(string) < active[j]["id"].(string) })

	focus, _ := d.Focus.Get()
	result := map[string]any{
		"active_count":  len(active),
		"blocked_items": blocked,
		"stale_items":   stale,
		"focus":         map[string]any{"task": focus.Task, "domain": focus.Domain},
	}
	if full, _ := req.Raw["full"].(bool); full {
		result["active"] = active
	}

	budget := resolveBudget(req.Raw)
	result, truncated := fitToBudget(result, budget)
	result["budget_chars"] = budget
	if truncated {
		result["truncated"] = true
	}
	return resp.ok().withResult(result)
}

func itemNow(items []*model.Item) time.Time {
	var latest time.Time
	for _, it := range items {
		if it.Updated.After(latest) {
			latest = it.Updated
		}
	}
	if latest.IsZero() {
		return time.Now()
	}
	return latest
}

// handleHandoff builds a compact resumption packet for the resolved
// target: current status, the next actionable step, blockers, and recent
// history, budget-capped.
func handleHandoff(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}

	result := map[string]any{
		"id": item.ID, "title": item.Title, "status": item.Status,
		"progress": item.Progress(), "blocked": item.Blocked, "revision": item.Revision,
	}
	if item.Blocked {
		result["blockers"] = item.Blockers
	}
	if next := nextActionableStep(item.Steps); next != nil {
		result["next_step"] = stepSummary(next)
	}
	result["recent_events"] = recentEvents(item.Events, 5)
	issues := Lint(item)
	if len(issues) > 0 {
		result["lint_issues"] = issues
	}

	budget := resolveBudget(req.Raw)
	result, truncated := fitToBudget(result, budget)
	result["budget_chars"] = budget
	if truncated {
		result["truncated"] = true
	}
	return resp.ok().withResult(result)
}

// nextActionableStep walks steps in order and returns the first
// incomplete, unblocked step.
func nextActionableStep(steps []model.Step) *model.Step {
	type frame struct {
		steps []model.Step
		idx   int
	}
	stack := []frame{{steps: steps}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.idx >= len(top.steps) {
			stack = stack[:len(stack)-1]
			continue
		}
		s := &top.steps[top.idx]
		top.idx++
		if !s.Completed && !s.Blocked {
			return s
		}
		if s.Plan != nil {
			for ti := range s.Plan.Tasks {
				if len(s.Plan.Tasks[ti].Steps) > 0 {
					stack = append(stack, frame{steps: s.Plan.Tasks[ti].Steps})
				}
			}
		}
	}
	return nil
}

// handleContextPack assembles a single budgeted bundle combining item
// state, subtree, and recent timeline — intended for direct injection
// into an agent's working context.
func handleContextPack(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}

	result := itemToMap(item)
	result["steps"] = stepSummaries(item.Steps)
	result["timeline"] = recentEvents(item.Events, 10)
	if item.IsPlan() {
		children, _ := d.Repo.List("")
		var tasks []map[string]any
		for _, c := range children {
			if c.Parent == item.ID {
				tasks = append(tasks, map[string]any{"id": c.ID, "title": c.Title, "status": c.Status})
			}
		}
		result["tasks"] = tasks
	}

	budget := resolveBudget(req.Raw)
	result, truncated := fitToBudget(result, budget)
	result["budget_chars"] = budget
	if truncated {
		result["truncated"] = true
	}
	return resp.ok().withResult(result)
}
