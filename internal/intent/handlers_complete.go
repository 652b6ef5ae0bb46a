package intent

import (
	"time"

	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/model"
)

// handleDone marks the resolved step complete, gated by invariant 6: it
// must be ReadyForCompletion unless auto_verify confirms the remaining
// required checkpoints atomically first.
func handleDone(d *Dispatcher, req *Request) *Response {
	return completeStep(d, req, false)
}

// handleCloseStep is the atomic verify-then-complete path: any
// checkpoints passed in `checkpoints` are confirmed first, then the step
// is completed in the same call, per §4.3.4.
func handleCloseStep(d *Dispatcher, req *Request) *Response {
	return completeStep(d, req, true)
}

func completeStep(d *Dispatcher, req *Request, autoVerify bool) *Response {
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
		return errorResponse(req.Intent, errs.New(errs.InvalidPath, "%s requires a step path", req.Intent))
	}
	step, serr := model.ResolveStep(item.Steps, req.Path)
	if serr != nil {
		return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", serr))
	}

	autoVerifyReq, _ := req.Raw["auto_verify"].(bool)
	if autoVerify || autoVerifyReq {
		if checkpointsRaw, ok := req.Raw["checkpoints"].(map[string]any); ok {
			for kind, v := range checkpointsRaw {
				m, _ := v.(map[string]any)
				confirmed, _ := m["confirmed"].(bool)
				if !confirmed {
					continue
				}
				state := step.Checkpoints.Ensure(model.CheckpointKind(kind))
				state.Confirmed = true
				if note, ok := m["note"].(string); ok && note != "" {
					state.Notes = append(state.Notes, note)
				}
			}
		}
	}

	if !step.ReadyForCompletion() {
		missing := step.MissingCheckpoints()
		return errorResponse(req.Intent, errs.New(errs.GatingFailed, "step %s is not ready for completion", step.ID).
			WithResult(map[string]any{"needs": missing, "missing_checkpoints": missing, "blocked": step.Blocked}))
	}

	now := time.Now().UTC()
	step.Completed = true
	step.CompletedAt = &now
	item.Updated = now
	item.Events = append(item.Events, model.Event{
		Timestamp: now, EventType: model.EventStatus, Actor: model.ActorAI,
		Target: step.ID, Data: map[string]any{"completed": true},
	})
	item.UpdateStatusFromProgress()

	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{
		itemEnvelopeKey(item): itemToMap(item), "step": stepSummary(step), "progress": item.Progress(),
	})
}

// handleContract sets/updates a Plan or Task's contract, appending a new
// ContractVersion whenever contract text, success_criteria, or
// contract_data actually change, per §4.3.4.
func handleContract(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "plan")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	contract, _ := req.Raw["contract"].(string)
	criteria := stringList(req.Raw, "success_criteria")
	newData := item.ContractData
	if goal, ok := req.Raw["goal"].(string); ok {
		newData.Goal = goal
	}
	if v, ok := req.Raw["constraints"].([]any); ok {
		newData.Constraints = stringList(map[string]any{"k": v}, "k")
	}
	if v, ok := req.Raw["assumptions"].([]any); ok {
		newData.Assumptions = stringList(map[string]any{"k": v}, "k")
	}
	if v, ok := req.Raw["non_goals"].([]any); ok {
		newData.NonGoals = stringList(map[string]any{"k": v}, "k")
	}
	if v, ok := req.Raw["risks"].([]any); ok {
		newData.Risks = stringList(map[string]any{"k": v}, "k")
	}

	changed := contract != item.Contract || !stringSlicesEqual(criteria, item.SuccessCriteria) || !newData.Equal(item.ContractData)
	if changed {
		item.ContractVersions = append(item.ContractVersions, model.ContractVersion{
			At: time.Now().UTC(), Contract: item.Contract,
			SuccessCriteria: item.SuccessCriteria, ContractData: item.ContractData,
		})
		item.Events = append(item.Events, model.Event{
			Timestamp: time.Now().UTC(), EventType: model.EventContractUpdated, Actor: model.ActorAI,
		})
	}
	if contract != "" {
		item.Contract = contract
	}
	if len(criteria) > 0 {
		item.SuccessCriteria = criteria
	}
	item.ContractData = newData
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{"plan": itemToMap(item), "contract_changed": changed})
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// handlePlanAdvance increments plan_current (clamped to len(plan_steps)),
// per §4.3.4.
func handlePlanAdvance(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "plan")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	if v, ok := req.Raw["plan_current"].(float64); ok {
		item.PlanCurrent = uint(v)
	} else {
		item.PlanCurrent++
	}
	item.ClampPlanCurrent()
	item.Events = append(item.Events, model.Event{
		Timestamp: time.Now().UTC(), EventType: model.EventPlanUpdated, Actor: model.ActorAI,
		Data: map[string]any{"plan_current": item.PlanCurrent},
	})
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{"plan": itemToMap(item)})
}

// handleComplete marks an item DONE outright. Blocked by lint errors
// unless force:true with a non-empty override_reason, in which case an
// override Event is appended, per §4.3.4.
func handleComplete(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	issues := ErrorIssues(Lint(item))
	force, _ := req.Raw["force"].(bool)
	reason, _ := req.Raw["override_reason"].(string)
	if len(issues) > 0 && !force {
		return errorResponse(req.Intent, errs.New(errs.LintErrorsBlocking, "%d lint error(s) block completion", len(issues)).
			WithResult(map[string]any{"issues": issues}))
	}
	if len(issues) > 0 && force && reason == "" {
		return errorResponse(req.Intent, errs.New(errs.MissingOverrideReas, "force completion requires override_reason"))
	}
	if len(issues) > 0 && force {
		item.Events = append(item.Events, model.Event{
			Timestamp: time.Now().UTC(), EventType: model.EventOverride, Actor: model.ActorAI,
			Data: map[string]any{"reason": reason, "issues": len(issues)},
		})
	}
	item.Status = model.StatusDone
	item.StatusManual = true
	item.Updated = time.Now().UTC()
	item.Events = append(item.Events, model.Event{
		Timestamp: item.Updated, EventType: model.EventStatus, Actor: model.ActorAI,
		Data: map[string]any{"status": model.StatusDone},
	})
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{itemEnvelopeKey(item): itemToMap(item)})
}

// handleDelete removes the resolved Item (no path) or Step/TaskNode (with
// path), per §4.3.4.
func handleDelete(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	if req.Path == "" {
		ok, err := d.Repo.Delete(res.ID, res.Domain)
		if err != nil {
			return errorResponse(req.Intent, errs.New(errs.InternalError, "delete %s: %v", res.ID, err))
		}
		if !ok {
			return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
		}
		if focus, _ := d.Focus.Get(); focus.Task == res.ID {
			_ = d.Focus.Clear()
		}
		return resp.ok().withResult(map[string]any{"deleted": res.ID})
	}
	return deleteAtPath(d, req, res)
}

// handleTaskDelete removes the Step or TaskNode at path; unlike delete, a
// path is required.
func handleTaskDelete(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "task")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	if req.Path == "" {
		return errorResponse(req.Intent, errs.New(errs.InvalidPath, "task_delete requires a path"))
	}
	_ = resp
	return deleteAtPath(d, req, res)
}

func deleteAtPath(d *Dispatcher, req *Request, res *TargetResolution) *Response {
	resp := newResponse(req.Intent)
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	removed := removeAtPath(&item.Steps, req.Path)
	if !removed {
		return errorResponse(req.Intent, errs.New(errs.PathNotFound, "path %s not found", req.Path))
	}
	item.Updated = time.Now().UTC()
	item.UpdateStatusFromProgress()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{itemEnvelopeKey(item): itemToMap(item), "deleted_path": req.Path})
}

// removeAtPath deletes the Step or TaskNode addressed by path from the
// tree rooted at root, returning whether anything was removed.
func removeAtPath(root *[]model.Step, path string) bool {
	segs, err := model.ParsePath(path)
	if err != nil || len(segs) == 0 {
		return false
	}
	stepsPtr := root
	steps := *root
	var cur *model.Step
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg.IsTaskNode {
			if cur == nil || cur.Plan == nil || seg.Index < 0 || seg.Index >= len(cur.Plan.Tasks) {
				return false
			}
			if last {
				cur.Plan.Tasks = append(cur.Plan.Tasks[:seg.Index], cur.Plan.Tasks[seg.Index+1:]...)
				return true
			}
			node := &cur.Plan.Tasks[seg.Index]
			stepsPtr = &node.Steps
			steps = node.Steps
			cur = nil
			continue
		}
		if seg.Index < 0 || seg.Index >= len(steps) {
			return false
		}
		if last {
			*stepsPtr = append(steps[:seg.Index], steps[seg.Index+1:]...)
			return true
		}
		cur = &steps[seg.Index]
	}
	return false
}
