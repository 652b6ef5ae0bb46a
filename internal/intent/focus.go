package intent

import (
	"strings"

	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/model"
)

// resolveFocus implements §4.3.3: explicit id wins; otherwise consult the
// `.last` focus pointer, constrained by targetKind ("plan", "task", or
// "any").
func (d *Dispatcher) resolveFocus(req *Request, targetKind string) (*TargetResolution, *errs.Error) {
	explicit := req.Task
	if explicit == "" {
		explicit = req.Plan
	}
	if explicit != "" {
		item, err := d.Repo.Load(explicit, "")
		if err != nil {
			return nil, errs.New(errs.NotFound, "target %s not found", explicit).WithRecovery("context")
		}
		if targetKind == "plan" && !item.IsPlan() {
			return nil, errs.New(errs.NotAPlan, "%s is not a plan", explicit).WithRecovery("context")
		}
		if targetKind == "task" && !item.IsTask() {
			return nil, errs.New(errs.NotATask, "%s is not a task", explicit).WithRecovery("context")
		}
		return &TargetResolution{Source: "explicit", ID: item.ID, Domain: item.Domain}, nil
	}

	focus, ferr := d.Focus.Get()
	if ferr != nil || focus.Task == "" {
		return nil, d.missingTargetError()
	}
	item, err := d.Repo.Load(focus.Task, focus.Domain)
	if err != nil {
		return nil, d.missingTargetError()
	}

	switch targetKind {
	case "plan":
		if item.IsPlan() {
			return &TargetResolution{Source: "focus", ID: item.ID, Domain: item.Domain}, nil
		}
		if item.IsTask() && item.Parent != "" {
			if parent, perr := d.Repo.Load(item.Parent, ""); perr == nil && parent.IsPlan() {
				return &TargetResolution{Source: "focus_task_parent", ID: parent.ID, Domain: parent.Domain}, nil
			}
		}
		return nil, errs.New(errs.FocusIncompatible, "focus target is not plan-compatible").WithRecovery("focus_set")
	case "task":
		if item.IsTask() {
			return &TargetResolution{Source: "focus", ID: item.ID, Domain: item.Domain}, nil
		}
		return nil, errs.New(errs.FocusIncompatible, "focus target is not a task").WithRecovery("focus_set")
	default: // "any"
		return &TargetResolution{Source: "focus", ID: item.ID, Domain: item.Domain}, nil
	}
}

func (d *Dispatcher) missingTargetError() *errs.Error {
	suggestions := []map[string]any{
		{"action": "context"},
		{"action": "focus_get"},
	}
	items, _ := d.Repo.List("")
	added := 0
	for _, it := range items {
		if added >= 3 {
			break
		}
		suggestions = append(suggestions, map[string]any{"action": "focus_set", "params": map[string]any{"task": it.ID}})
		added++
	}
	return errs.New(errs.MissingTarget, "no explicit target and no usable focus").
		WithRecovery("context").
		WithResult(map[string]any{"suggestions": suggestions})
}

// safeWritesGuard implements the expected_target_id / expected_kind /
// strict_targeting rules from §4.3.1.
func (d *Dispatcher) safeWritesGuard(req *Request, resolution *TargetResolution) *errs.Error {
	strict := req.StrictTargeting

	if !strict {
		active := 0
		items, _ := d.Repo.List("")
		for _, it := range items {
			if it.Status == model.StatusActive {
				active++
			}
		}
		if active > 1 && resolution.Source != "explicit" {
			strict = true
			req.StrictTargeting = true
			req.Raw["_strict_writes_auto"] = true
		}
	}

	if strict && req.ExpectedTargetID == "" {
		return errs.New(errs.StrictTargetingRequiresExpectedTargetID, "strict_targeting requires expected_target_id")
	}
	if req.ExpectedTargetID != "" && req.ExpectedTargetID != resolution.ID {
		return errs.New(errs.ExpectedTargetMismatch, "expected_target_id %q does not match resolved target %q", req.ExpectedTargetID, resolution.ID)
	}
	if req.ExpectedKind != "" {
		kind := "task"
		if strings.EqualFold(req.ExpectedKind, "plan") {
			kind = "plan"
		}
		item, err := d.Repo.Load(resolution.ID, resolution.Domain)
		if err == nil {
			if kind == "plan" && !item.IsPlan() {
				return errs.New(errs.InvalidExpectedKind, "expected_kind=plan does not match resolved item")
			}
			if kind == "task" && !item.IsTask() {
				return errs.New(errs.InvalidExpectedKind, "expected_kind=task does not match resolved item")
			}
		}
	}
	return nil
}
