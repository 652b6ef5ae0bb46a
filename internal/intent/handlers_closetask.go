package intent

import (
	"fmt"
	"time"

	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/model"
)

// runwayStep is one concrete, ready-to-apply action needed to close out a
// task: either completing a step, or confirming a missing checkpoint on
// one.
type runwayStep struct {
	Action string                 `json:"action"` // "verify" | "done"
	Path   string                 `json:"path"`
	StepID string                 `json:"step_id"`
	Needs  []model.CheckpointKind `json:"needs,omitempty"`
}

// runwayComposite is the §4.3.5 runway: open reports whether any step
// in the tree is still incomplete; steps lists the ordered actions that
// would close them out. A task can have an empty (closed) step runway
// and still be blocked by patches — see closeTaskDiff.
type runwayComposite struct {
	Open  bool         `json:"open"`
	Steps []runwayStep `json:"steps"`
}

// closeTaskPatch is a patch recipe close_task can both describe, for
// preview, and apply directly: the same {kind, ops} shape a caller would
// hand to the "patch" intent.
type closeTaskPatch struct {
	Kind string    `json:"kind"`
	Ops  []patchOp `json:"ops"`
}

// applySuggestion is a single replayable "patch" call offered back to the
// caller instead of close_task guessing on their behalf.
type applySuggestion struct {
	Intent           string         `json:"intent"`
	Params           map[string]any `json:"params"`
	ExpectedRevision uint64         `json:"expected_revision"`
}

// closeTaskDiff is the §4.3.5 diff: the patch recipes needed before the
// step runway can close, the outcome of applying them (nil in a
// preview), and a descriptor of what "apply" did or would do.
type closeTaskDiff struct {
	Patches      []closeTaskPatch `json:"patches"`
	PatchResults []map[string]any `json:"patch_results,omitempty"`
	Apply        map[string]any   `json:"apply"`
}

// handleCloseTask computes, and — only when apply=true is explicit —
// executes, everything needed to bring a task to DONE: any patch recipe
// a blocking lint error can be resolved by (currently, a missing
// success_criteria), then the runway of step completions and checkpoint
// confirmations. Without apply=true it always previews; it never
// mutates on a path that ends up still blocked.
func handleCloseTask(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "task")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}

	issues := ErrorIssues(Lint(item))
	patches := deriveCloseTaskPatches(item, issues)
	unresolved := issuesWithoutPatch(issues, patches)

	force, _ := req.Raw["force"].(bool)
	if len(unresolved) > 0 && !force {
		return errorResponse(req.Intent, errs.New(errs.LintErrorsBlocking, "%d lint error(s) block close_task", len(unresolved)).
			WithResult(map[string]any{"issues": unresolved}))
	}

	runwaySteps := deriveRunway(item.Steps, nil)
	runway := runwayComposite{Open: len(runwaySteps) > 0, Steps: runwaySteps}
	current := itemToMap(item)

	apply, _ := req.Raw["apply"].(bool)
	dryRun, _ := req.Raw["dry_run"].(bool)
	if !apply || dryRun {
		diff := closeTaskDiff{Patches: patches, Apply: map[string]any{"requested": false}}
		result := map[string]any{
			"dry_run": true,
			"lint":    issues, "runway": runway, "diff": diff,
			"current":  current,
			"computed": closeTaskComputed(item, runway, len(patches) == 0),
		}
		return resp.ok().withResult(result)
	}

	// Apply the derived patches and runway in-process, against an
	// in-memory copy; only persist if the task actually ends up closable.
	patchResults := make([]map[string]any, 0, len(patches))
	for _, p := range patches {
		before := itemToMap(item)
		for _, op := range p.Ops {
			if ferr := applyTaskDetailOp(item, op); ferr != nil {
				return errorResponse(req.Intent, ferr)
			}
		}
		patchResults = append(patchResults, map[string]any{"kind": p.Kind, "before": before, "after": itemToMap(item)})
	}

	if err := applyRunway(item, runwaySteps); err != nil {
		return errorResponse(req.Intent, errs.New(errs.RunwayClosed, "%v", err))
	}

	stillBlocking := ErrorIssues(Lint(item))
	if len(stillBlocking) > 0 && !force {
		suggestion := closeTaskSuggestion(item, res.ID, stillBlocking)
		e := errs.New(errs.RunwayClosed, "task still has %d blocking lint error(s) after applying the runway", len(stillBlocking)).
			WithResult(map[string]any{"issues": stillBlocking, "suggestion": suggestion})
		return errorResponse(req.Intent, e)
	}

	item.Status = model.StatusDone
	item.StatusManual = true
	item.Updated = time.Now().UTC()
	item.Events = append(item.Events, model.Event{
		Timestamp: item.Updated, EventType: model.EventStatus, Actor: model.ActorAI,
		Data: map[string]any{"status": model.StatusDone, "via": "close_task"},
	})
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	diff := closeTaskDiff{Patches: patches, PatchResults: patchResults, Apply: map[string]any{"requested": true, "applied": true}}
	return resp.ok().withResult(map[string]any{
		itemEnvelopeKey(item): itemToMap(item),
		"applied":             true, "closed": true,
		"runway": runwayComposite{Open: false, Steps: nil}, "diff": diff,
	})
}

// deriveCloseTaskPatches turns any lint error this handler knows how to
// resolve automatically into a replayable patch recipe. Only
// MISSING_SUCCESS_CRITERIA currently has a known recipe: append the
// first contract_data.done entry, or a generic placeholder, as the
// task's success criterion — grounded on the "definition of done"
// fallback the reference close-task recipe emits for a task_detail
// patch.
func deriveCloseTaskPatches(item *model.Item, issues []LintIssue) []closeTaskPatch {
	var patches []closeTaskPatch
	for _, iss := range issues {
		if iss.Code != "MISSING_SUCCESS_CRITERIA" {
			continue
		}
		value := "<definition of done>"
		if len(item.ContractData.Done) > 0 {
			value = item.ContractData.Done[0]
		}
		patches = append(patches, closeTaskPatch{
			Kind: "task_detail",
			Ops:  []patchOp{{Op: "append", Field: "success_criteria", Value: value}},
		})
	}
	return patches
}

// issuesWithoutPatch filters issues down to those deriveCloseTaskPatches
// has no recipe for, i.e. the ones that still require force or a manual
// fix before close_task can proceed.
func issuesWithoutPatch(issues []LintIssue, patches []closeTaskPatch) []LintIssue {
	if len(patches) == 0 {
		return issues
	}
	var out []LintIssue
	for _, iss := range issues {
		if iss.Code == "MISSING_SUCCESS_CRITERIA" {
			continue
		}
		out = append(out, iss)
	}
	return out
}

// closeTaskComputed summarizes derived state a preview caller needs
// without requiring it to re-run lint or progress math itself.
func closeTaskComputed(item *model.Item, runway runwayComposite, patchesClear bool) map[string]any {
	return map[string]any{
		"progress":    item.Progress(),
		"closeable":   !runway.Open && patchesClear,
		"issue_count": len(ErrorIssues(Lint(item))),
	}
}

// closeTaskSuggestion builds the single validated recipe a still-blocked
// apply hands back instead of mutating further on its own.
func closeTaskSuggestion(item *model.Item, taskID string, issues []LintIssue) *applySuggestion {
	patches := deriveCloseTaskPatches(item, issues)
	if len(patches) == 0 {
		return nil
	}
	p := patches[0]
	ops := make([]map[string]any, 0, len(p.Ops))
	for _, op := range p.Ops {
		ops = append(ops, map[string]any{"op": op.Op, "field": op.Field, "value": op.Value})
	}
	return &applySuggestion{
		Intent:           "patch",
		Params:           map[string]any{"task": taskID, "kind": p.Kind, "ops": ops},
		ExpectedRevision: item.Revision,
	}
}

// deriveRunway walks steps in order, appending runwaySteps for every
// incomplete step: a "verify" naming its missing required checkpoints,
// if any, followed by a "done". prefix is the dotted path
// of the Step slice's owner (empty for the root).
func deriveRunway(steps []model.Step, prefixSegs []string) []runwayStep {
	var out []runwayStep
	for i := range steps {
		s := &steps[i]
		path := appendPathSegment(prefixSegs, fmt.Sprintf("s:%d", i))
		if s.Plan != nil && len(s.Plan.Tasks) > 0 {
			for ti := range s.Plan.Tasks {
				node := &s.Plan.Tasks[ti]
				nodePath := appendPathSegment(path, fmt.Sprintf("t:%d", ti))
				out = append(out, deriveRunway(node.Steps, nodePath)...)
			}
		}
		if s.Completed {
			continue
		}
		missing := s.MissingCheckpoints()
		if len(missing) > 0 {
			out = append(out, runwayStep{Action: "verify", Path: joinPath(path), StepID: s.ID, Needs: missing})
		}
		out = append(out, runwayStep{Action: "done", Path: joinPath(path), StepID: s.ID})
	}
	return out
}

func appendPathSegment(prefix []string, seg string) []string {
	out := make([]string, 0, len(prefix)+1)
	out = append(out, prefix...)
	out = append(out, seg)
	return out
}

func joinPath(segs []string) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}

// applyRunway executes the derived runway in order: auto-confirms any
// "verify" step's missing checkpoints (best-effort, marking them
// confirmed with an auto-generated note) and marks "done" steps
// Completed. Returns an error naming the first step that still cannot be
// completed after verification.
func applyRunway(item *model.Item, runway []runwayStep) error {
	for _, r := range runway {
		step, err := model.ResolveStep(item.Steps, r.Path)
		if err != nil {
			return fmt.Errorf("resolve runway path %s: %w", r.Path, err)
		}
		switch r.Action {
		case "verify":
			for _, kind := range r.Needs {
				state := step.Checkpoints.Ensure(kind)
				state.Confirmed = true
				state.Notes = append(state.Notes, "confirmed via close_task runway")
			}
		case "done":
			if !step.ReadyForCompletion() {
				return fmt.Errorf("step %s is not ready for completion", step.ID)
			}
			now := time.Now().UTC()
			step.Completed = true
			step.CompletedAt = &now
		}
	}
	return nil
}
