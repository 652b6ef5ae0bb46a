package intent

import (
	"context"
	"time"

	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/evidence"
	"github.com/apply-task/taskengine/internal/git"
	"github.com/apply-task/taskengine/internal/model"
)

// editableScalarFields lists the scalar Item fields edit may set directly.
var editableScalarFields = map[string]bool{
	"title": true, "description": true, "context": true, "priority": true,
	"domain": true, "plan_doc": true,
}

// handleEdit applies scalar field edits to the resolved item, including
// depends_on cycle validation and new_domain moves, per §4.3.4.
func handleEdit(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}

	changed := false
	for field := range editableScalarFields {
		v, ok := req.Raw[field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return errorResponse(req.Intent, errs.New(errs.InvalidField, "field %q must be a string", field))
		}
		switch field {
		case "title":
			item.Title = s
		case "description":
			item.Description = s
		case "context":
			item.Context = s
		case "priority":
			item.Priority = model.Priority(s)
		case "domain":
			// handled via new_domain below; plain domain edits are a no-op
			// rename performed through Move.
		case "plan_doc":
			item.PlanDoc = s
		}
		changed = true
	}
	if v, ok := req.Raw["tags"]; ok {
		if list, ok := v.([]any); ok {
			item.Tags = stringList(map[string]any{"tags": list}, "tags")
			changed = true
		}
	}
	if v, ok := req.Raw["depends_on"]; ok {
		list, ok := v.([]any)
		if !ok {
			return errorResponse(req.Intent, errs.New(errs.InvalidDependsOn, "depends_on must be a list"))
		}
		deps := stringList(map[string]any{"depends_on": list}, "depends_on")
		if cyc := d.detectDependencyCycle(item.ID, deps); cyc != "" {
			return errorResponse(req.Intent, errs.New(errs.CircularDependency, "depends_on introduces a cycle via %s", cyc))
		}
		item.DependsOn = deps
		changed = true
	}

	newDomain, _ := req.Raw["new_domain"].(string)
	if newDomain != "" && newDomain != item.Domain {
		if err := d.Repo.Move(item.ID, item.Domain, newDomain); err != nil {
			return errorResponse(req.Intent, errs.New(errs.InternalError, "move %s: %v", item.ID, err))
		}
		item.Domain = newDomain
		changed = true
	}

	if !changed {
		return errorResponse(req.Intent, errs.New(errs.InvalidRequest, "edit requires at least one field"))
	}
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{itemEnvelopeKey(item): itemToMap(item)})
}

// detectDependencyCycle returns a description of the cycle if adding deps
// to id would create one, walking the depends_on graph via DFS. Empty
// string means no cycle.
func (d *Dispatcher) detectDependencyCycle(id string, deps []string) string {
	visited := map[string]bool{}
	var walk func(cur string, path []string) string
	walk = func(cur string, path []string) string {
		if cur == id {
			return id
		}
		if visited[cur] {
			return ""
		}
		visited[cur] = true
		item, err := d.Repo.Load(cur, "")
		if err != nil {
			return ""
		}
		for _, dep := range item.DependsOn {
			if dep == id {
				return cur
			}
			if found := walk(dep, append(path, cur)); found != "" {
				return found
			}
		}
		return ""
	}
	for _, dep := range deps {
		if dep == id {
			return id
		}
		if found := walk(dep, nil); found != "" {
			return found
		}
	}
	return ""
}

// handleDefine sets a Step's title/success_criteria/tests/blockers, per
// §4.3.4.
func handleDefine(d *Dispatcher, req *Request) *Response {
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
		return errorResponse(req.Intent, errs.New(errs.InvalidPath, "define requires a path"))
	}
	step, serr := model.ResolveStep(item.Steps, req.Path)
	if serr != nil {
		return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", serr))
	}
	if title, ok := req.Raw["title"].(string); ok && title != "" {
		step.Title = title
	}
	if v, ok := req.Raw["success_criteria"].([]any); ok {
		step.SuccessCriteria = stringList(map[string]any{"k": v}, "k")
	}
	if v, ok := req.Raw["tests"].([]any); ok {
		step.Tests = stringList(map[string]any{"k": v}, "k")
	}
	if v, ok := req.Raw["blockers"].([]any); ok {
		step.Blockers = stringList(map[string]any{"k": v}, "k")
	}
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{"task": itemToMap(item), "step": stepSummary(step)})
}

// handleVerify is confirmation-only: every checkpoint named in
// `checkpoints` must carry confirmed:true. Each checkpoint's note and
// evidence_refs are appended to that checkpoint's state; checks and
// attachments supplied in the request are not read. It also best-effort
// records the current git branch as a verification check, non-fatally;
// no CI evidence is collected.
func handleVerify(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	if req.Path == "" {
		return errorResponse(req.Intent, errs.New(errs.InvalidPath, "verify requires a step path"))
	}
	step, serr := model.ResolveStep(item.Steps, req.Path)
	if serr != nil {
		return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", serr))
	}

	checkpointsRaw, _ := req.Raw["checkpoints"].(map[string]any)
	if len(checkpointsRaw) == 0 {
		return errorResponse(req.Intent, errs.New(errs.VerifyNoop, "verify requires at least one checkpoint"))
	}
	confirmedAny := false
	for kind, v := range checkpointsRaw {
		m, ok := v.(map[string]any)
		if !ok {
			return errorResponse(req.Intent, errs.New(errs.InvalidCheckpoint, "checkpoint %q must be an object", kind))
		}
		confirmed, _ := m["confirmed"].(bool)
		if !confirmed {
			return errorResponse(req.Intent, errs.New(errs.InvalidCheckpoint, "checkpoint %q must be confirmed:true", kind))
		}
		ck := model.CheckpointKind(kind)
		state := step.Checkpoints.Ensure(ck)
		state.Confirmed = true
		if note, ok := m["note"].(string); ok && note != "" {
			state.Notes = append(state.Notes, note)
		}
		if refs, ok := m["evidence_refs"].([]any); ok {
			for _, r := range refs {
				if s, ok := r.(string); ok {
					state.EvidenceRefs = append(state.EvidenceRefs, s)
				}
			}
		}
		confirmedAny = true
	}
	if !confirmedAny {
		return errorResponse(req.Intent, errs.New(errs.VerifyNoop, "no checkpoint was confirmed"))
	}

	step.VerificationChecks = d.collectStepEvidence(step)

	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{
		itemEnvelopeKey(item): itemToMap(item), "step": stepSummary(step),
	})
}

// collectStepEvidence best-effort adds the current git branch as a check
// for a step verification. Failures are non-fatal and simply leave the check list
// unchanged.
func (d *Dispatcher) collectStepEvidence(step *model.Step) []model.VerificationCheck {
	checks := step.VerificationChecks
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !git.Available(ctx, d.Repo.Root) {
		return checks
	}
	if branch, err := git.CurrentBranch(ctx, d.Repo.Root); err == nil && branch != "" {
		check := evidence.BuildCheck("git_branch", "current branch", "observed", branch, nil)
		checks = evidence.DedupChecks(checks, []model.VerificationCheck{check})
	}
	return checks
}

// handleEvidenceCapture appends evidence (cmd_output/diff/url) to the
// attachments of the step at path without requiring confirmation, per
// §4.3.4.
func handleEvidenceCapture(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "task")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	kind, _ := req.Raw["kind"].(string)
	var attachment model.Attachment
	switch kind {
	case "cmd_output":
		payload := evidence.CmdOutputPayload{}
		payload.Command, _ = req.Raw["command"].(string)
		payload.Stdout, _ = req.Raw["stdout"].(string)
		payload.Stderr, _ = req.Raw["stderr"].(string)
		if ec, ok := req.Raw["exit_code"].(float64); ok {
			payload.ExitCode = int(ec)
		}
		attachment, err = d.Evidence.CaptureCmdOutput(payload)
	case "diff":
		text, _ := req.Raw["text"].(string)
		attachment, err = d.Evidence.CaptureDiff(text)
	case "url":
		uri, _ := req.Raw["uri"].(string)
		attachment = evidence.CaptureURL(uri)
	default:
		return errorResponse(req.Intent, errs.New(errs.InvalidArtifactKind, "unsupported evidence kind %q", kind))
	}
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "capture evidence: %v", err))
	}

	if req.Path == "" {
		return errorResponse(req.Intent, errs.New(errs.InvalidPath, "evidence_capture requires a step path"))
	}
	step, serr := model.ResolveStep(item.Steps, req.Path)
	if serr != nil {
		return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", serr))
	}
	step.Attachments = evidence.DedupAttachments(step.Attachments, []model.Attachment{attachment})

	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	result := map[string]any{
		itemEnvelopeKey(item): itemToMap(item), "attachment": attachment, "step": stepSummary(step),
	}
	return resp.ok().withResult(result)
}

// handleProgress appends a free-text progress note to the resolved
// step's progress_notes, per §4.3.4.
func handleProgress(d *Dispatcher, req *Request) *Response {
	return appendStepNote(d, req, "progress")
}

// handleNote is an alias of progress for item-level or step-level notes.
func handleNote(d *Dispatcher, req *Request) *Response {
	return appendStepNote(d, req, "note")
}

func appendStepNote(d *Dispatcher, req *Request, kind string) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "task")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	note, _ := req.Raw["note"].(string)
	if note == "" {
		return errorResponse(req.Intent, errs.New(errs.InvalidRequest, "%s requires note", kind))
	}
	if req.Path != "" {
		step, serr := model.ResolveStep(item.Steps, req.Path)
		if serr != nil {
			return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", serr))
		}
		step.ProgressNotes = append(step.ProgressNotes, note)
	} else {
		item.Events = append(item.Events, model.Event{
			Timestamp: time.Now().UTC(), EventType: model.EventStatus, Actor: model.ActorAI,
			Data: map[string]any{"note": note},
		})
	}
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{itemEnvelopeKey(item): itemToMap(item)})
}

// handleBlock sets or clears a Step's (or, without a path, the Item's)
// blocked flag and reason, per §4.3.4.
func handleBlock(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "task")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	blocked, _ := req.Raw["blocked"].(bool)
	reason, _ := req.Raw["reason"].(string)
	if blocked && reason == "" {
		return errorResponse(req.Intent, errs.New(errs.InvalidRequest, "block requires reason when blocked:true"))
	}
	if req.Path != "" {
		step, serr := model.ResolveStep(item.Steps, req.Path)
		if serr != nil {
			return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", serr))
		}
		step.Blocked = blocked
		step.BlockReason = reason
	} else {
		item.Blocked = blocked
		if blocked {
			item.Blockers = append(item.Blockers, reason)
		}
		item.Events = append(item.Events, model.Event{
			Timestamp: time.Now().UTC(), EventType: model.EventBlocked, Actor: model.ActorAI,
			Data: map[string]any{"blocked": blocked, "reason": reason},
		})
	}
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	return resp.ok().withResult(map[string]any{itemEnvelopeKey(item): itemToMap(item)})
}

