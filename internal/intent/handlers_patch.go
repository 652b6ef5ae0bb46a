package intent

import (
	"fmt"
	"strings"
	"time"

	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/model"
)

// patchOp is one operation in a patch request.
type patchOp struct {
	Op    string `json:"op"` // "set" | "unset" | "append" | "remove"
	Field string `json:"field"`
	Value any    `json:"value,omitempty"`
}

var itemScalarFields = map[string]bool{
	"title": true, "description": true, "context": true, "priority": true, "contract": true,
}
var itemListFields = map[string]bool{
	"tags": true, "success_criteria": true, "tests": true, "blockers": true, "depends_on": true,
}
var stepScalarFields = map[string]bool{"title": true}
var stepListFields = map[string]bool{
	"success_criteria": true, "tests": true, "blockers": true, "progress_notes": true,
}
var taskNodeScalarFields = map[string]bool{"title": true, "status": true, "blocked": true, "status_manual": true}

var contractDataScalarFields = map[string]bool{"goal": true}
var contractDataListFields = map[string]bool{
	"constraints": true, "assumptions": true, "non_goals": true, "done": true, "risks": true, "checks": true,
}

// handlePatch applies a structured sequence of field-level operations to
// the resolved Item, a Step, or a nested TaskNode, per §4.3.6.
//
// kind selects the target:
//   - "task_detail" (default when omitted): the resolved Item itself,
//     including contract_data.<key> addressing. "item" is accepted as an
//     alias for "task_detail".
//   - "step": a Step reached by path.
//   - "task": a nested TaskNode reached by a path ending in "t:<n>".
//
// dry_run returns the computed diff without saving.
func handlePatch(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}

	kind, _ := req.Raw["kind"].(string)
	if kind == "" {
		kind = "task_detail"
	}
	if kind == "item" {
		kind = "task_detail"
	}
	rawOps, _ := req.Raw["ops"].([]any)
	if len(rawOps) == 0 {
		return errorResponse(req.Intent, errs.New(errs.InvalidOp, "patch requires a non-empty ops list"))
	}
	ops := make([]patchOp, 0, len(rawOps))
	for _, ro := range rawOps {
		m, ok := ro.(map[string]any)
		if !ok {
			return errorResponse(req.Intent, errs.New(errs.InvalidOp, "each op must be an object"))
		}
		op := patchOp{}
		op.Op, _ = m["op"].(string)
		op.Field, _ = m["field"].(string)
		op.Value = m["value"]
		ops = append(ops, op)
	}

	dryRun, _ := req.Raw["dry_run"].(bool)
	var before, after map[string]any
	var step *model.Step
	var taskNode *model.TaskNode

	switch kind {
	case "task_detail":
		before = itemToMap(item)
		contractBefore := item.Contract
		ssBefore := append([]string(nil), item.SuccessCriteria...)
		cdBefore := item.ContractData
		for _, op := range ops {
			if ferr := applyTaskDetailOp(item, op); ferr != nil {
				return errorResponse(req.Intent, ferr)
			}
		}
		if item.Contract != contractBefore || !stringSlicesEqual(item.SuccessCriteria, ssBefore) || !item.ContractData.Equal(cdBefore) {
			item.ContractVersions = append(item.ContractVersions, model.ContractVersion{
				At: time.Now().UTC(), Contract: contractBefore,
				SuccessCriteria: ssBefore, ContractData: cdBefore,
			})
		}
		after = itemToMap(item)
	case "step":
		if req.Path == "" {
			return errorResponse(req.Intent, errs.New(errs.InvalidPath, "patch kind=step requires a path"))
		}
		var serr error
		step, serr = model.ResolveStep(item.Steps, req.Path)
		if serr != nil {
			return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", serr))
		}
		before = stepSummary(step)
		ssBefore := append([]string(nil), step.SuccessCriteria...)
		tBefore := append([]string(nil), step.Tests...)
		changedFields := 0
		for _, op := range ops {
			if !stepScalarFields[op.Field] && !stepListFields[op.Field] {
				return errorResponse(req.Intent, errs.New(errs.ForbiddenField, "field %q is not patchable on kind=step", op.Field))
			}
			if err := applyStepOp(step, op); err != nil {
				return errorResponse(req.Intent, errs.New(errs.InvalidOp, "%v", err))
			}
			changedFields++
		}
		if !stringSlicesEqual(ssBefore, step.SuccessCriteria) {
			st := step.Checkpoints.Ensure(model.CheckpointCriteria)
			st.Confirmed = false
			st.AutoConfirmed = false
		}
		if !stringSlicesEqual(tBefore, step.Tests) {
			st := step.Checkpoints.Ensure(model.CheckpointTests)
			st.Confirmed = false
			st.AutoConfirmed = len(step.Tests) == 0
		}
		if changedFields > 0 {
			step.Completed = false
			step.CompletedAt = nil
		}
		after = stepSummary(step)
	case "task":
		if req.Path == "" {
			return errorResponse(req.Intent, errs.New(errs.InvalidPath, "patch kind=task requires a path"))
		}
		var terr error
		taskNode, terr = model.ResolveTaskNode(item.Steps, req.Path)
		if terr != nil {
			return errorResponse(req.Intent, errs.New(errs.PathNotFound, "%v", terr))
		}
		before = taskNodeSummary(taskNode)
		statusChanged := false
		statusManualSet := false
		for _, op := range ops {
			if !taskNodeScalarFields[op.Field] {
				return errorResponse(req.Intent, errs.New(errs.ForbiddenField, "field %q is not patchable on kind=task", op.Field))
			}
			switch op.Field {
			case "status":
				statusChanged = true
			case "status_manual":
				statusManualSet = true
			}
			if err := applyTaskNodeOp(taskNode, op); err != nil {
				return errorResponse(req.Intent, errs.New(errs.InvalidOp, "%v", err))
			}
		}
		if statusChanged && !statusManualSet {
			taskNode.StatusManual = true
		}
		after = taskNodeSummary(taskNode)
	default:
		return errorResponse(req.Intent, errs.New(errs.InvalidKind, "unsupported patch kind %q", kind))
	}

	if dryRun {
		return resp.ok().withResult(map[string]any{"dry_run": true, "before": before, "after": after})
	}

	if item.IsTask() {
		item.UpdateStatusFromProgress()
	}
	item.Updated = time.Now().UTC()
	if err := d.Repo.Save(item); err != nil {
		return errorResponse(req.Intent, errs.New(errs.InternalError, "save %s: %v", item.ID, err))
	}
	result := map[string]any{itemEnvelopeKey(item): itemToMap(item), "before": before, "after": after}
	if step != nil {
		result["step"] = stepSummary(step)
	}
	if taskNode != nil {
		result["task_node"] = taskNodeSummary(taskNode)
	}
	return resp.ok().withResult(result)
}

// applyTaskDetailOp routes a task_detail op to either the plain
// item-field table or, for "contract_data.<key>" fields, the
// ContractData sub-object.
func applyTaskDetailOp(item *model.Item, op patchOp) *errs.Error {
	if key, ok := strings.CutPrefix(op.Field, "contract_data."); ok {
		if !contractDataScalarFields[key] && !contractDataListFields[key] {
			return errs.New(errs.ForbiddenField, "field %q is not patchable on contract_data", key)
		}
		if err := applyContractDataOp(&item.ContractData, key, op); err != nil {
			return errs.New(errs.InvalidOp, "%v", err)
		}
		return nil
	}
	if !itemScalarFields[op.Field] && !itemListFields[op.Field] {
		return errs.New(errs.ForbiddenField, "field %q is not patchable on kind=task_detail", op.Field)
	}
	if err := applyItemOp(item, op); err != nil {
		return errs.New(errs.InvalidOp, "%v", err)
	}
	return nil
}

func applyContractDataOp(data *model.ContractData, key string, op patchOp) error {
	if contractDataListFields[key] {
		cur := contractDataListFieldValue(data, key)
		updated, err := applyListOp(cur, op)
		if err != nil {
			return err
		}
		setContractDataListField(data, key, updated)
		return nil
	}
	switch op.Op {
	case "set":
		s, _ := op.Value.(string)
		data.Goal = s
	case "unset":
		data.Goal = ""
	default:
		return fmt.Errorf("op %q not supported on contract_data.%s", op.Op, key)
	}
	return nil
}

func contractDataListFieldValue(data *model.ContractData, key string) []string {
	switch key {
	case "constraints":
		return data.Constraints
	case "assumptions":
		return data.Assumptions
	case "non_goals":
		return data.NonGoals
	case "done":
		return data.Done
	case "risks":
		return data.Risks
	case "checks":
		return data.Checks
	}
	return nil
}

func setContractDataListField(data *model.ContractData, key string, v []string) {
	switch key {
	case "constraints":
		data.Constraints = v
	case "assumptions":
		data.Assumptions = v
	case "non_goals":
		data.NonGoals = v
	case "done":
		data.Done = v
	case "risks":
		data.Risks = v
	case "checks":
		data.Checks = v
	}
}

func applyItemOp(item *model.Item, op patchOp) error {
	if itemListFields[op.Field] {
		cur := itemListFieldValue(item, op.Field)
		updated, err := applyListOp(cur, op)
		if err != nil {
			return err
		}
		setItemListField(item, op.Field, updated)
		return nil
	}
	switch op.Op {
	case "set":
		s, _ := op.Value.(string)
		setItemScalarField(item, op.Field, s)
	case "unset":
		setItemScalarField(item, op.Field, "")
	default:
		return fmt.Errorf("op %q not supported on scalar field %q", op.Op, op.Field)
	}
	return nil
}

func applyStepOp(step *model.Step, op patchOp) error {
	if stepListFields[op.Field] {
		cur := stepListFieldValue(step, op.Field)
		updated, err := applyListOp(cur, op)
		if err != nil {
			return err
		}
		setStepListField(step, op.Field, updated)
		return nil
	}
	switch op.Op {
	case "set":
		s, _ := op.Value.(string)
		step.Title = s
	case "unset":
		return fmt.Errorf("field %q cannot be unset", op.Field)
	default:
		return fmt.Errorf("op %q not supported on scalar field %q", op.Op, op.Field)
	}
	return nil
}

func applyTaskNodeOp(node *model.TaskNode, op patchOp) error {
	switch op.Field {
	case "title":
		if op.Op != "set" {
			return fmt.Errorf("op %q not supported on scalar field %q", op.Op, op.Field)
		}
		s, _ := op.Value.(string)
		node.Title = s
	case "status":
		if op.Op != "set" {
			return fmt.Errorf("op %q not supported on scalar field %q", op.Op, op.Field)
		}
		s, _ := op.Value.(string)
		node.Status = model.Status(s)
	case "blocked":
		if op.Op != "set" {
			return fmt.Errorf("op %q not supported on scalar field %q", op.Op, op.Field)
		}
		b, _ := op.Value.(bool)
		node.Blocked = b
	case "status_manual":
		if op.Op != "set" {
			return fmt.Errorf("op %q not supported on scalar field %q", op.Op, op.Field)
		}
		b, _ := op.Value.(bool)
		node.StatusManual = b
	default:
		return fmt.Errorf("field %q is not patchable on kind=task", op.Field)
	}
	return nil
}

func taskNodeSummary(n *model.TaskNode) map[string]any {
	return map[string]any{
		"id": n.ID, "title": n.Title, "status": string(n.Status),
		"status_manual": n.StatusManual, "blocked": n.Blocked,
	}
}

// applyListOp implements append (dedup), remove, set, unset for a
// string-list field.
func applyListOp(cur []string, op patchOp) ([]string, error) {
	switch op.Op {
	case "append":
		v, ok := op.Value.(string)
		if !ok {
			return nil, fmt.Errorf("append requires a string value for field %q", op.Field)
		}
		for _, existing := range cur {
			if existing == v {
				return cur, nil
			}
		}
		return append(cur, v), nil
	case "remove":
		v, ok := op.Value.(string)
		if !ok {
			return nil, fmt.Errorf("remove requires a string value for field %q", op.Field)
		}
		out := cur[:0:0]
		for _, existing := range cur {
			if existing != v {
				out = append(out, existing)
			}
		}
		return out, nil
	case "set":
		list, ok := op.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("set requires a list value for field %q", op.Field)
		}
		return stringList(map[string]any{"k": list}, "k"), nil
	case "unset":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported op %q for list field %q", op.Op, op.Field)
	}
}

func itemListFieldValue(item *model.Item, field string) []string {
	switch field {
	case "tags":
		return item.Tags
	case "success_criteria":
		return item.SuccessCriteria
	case "tests":
		return item.Tests
	case "blockers":
		return item.Blockers
	case "depends_on":
		return item.DependsOn
	}
	return nil
}

func setItemListField(item *model.Item, field string, v []string) {
	switch field {
	case "tags":
		item.Tags = v
	case "success_criteria":
		item.SuccessCriteria = v
	case "tests":
		item.Tests = v
	case "blockers":
		item.Blockers = v
	case "depends_on":
		item.DependsOn = v
	}
}

func setItemScalarField(item *model.Item, field, v string) {
	switch field {
	case "title":
		item.Title = v
	case "description":
		item.Description = v
	case "context":
		item.Context = v
	case "priority":
		item.Priority = model.Priority(v)
	case "contract":
		item.Contract = v
	}
}

func stepListFieldValue(step *model.Step, field string) []string {
	switch field {
	case "success_criteria":
		return step.SuccessCriteria
	case "tests":
		return step.Tests
	case "blockers":
		return step.Blockers
	case "progress_notes":
		return step.ProgressNotes
	}
	return nil
}

func setStepListField(step *model.Step, field string, v []string) {
	switch field {
	case "success_criteria":
		step.SuccessCriteria = v
	case "tests":
		step.Tests = v
	case "blockers":
		step.Blockers = v
	case "progress_notes":
		step.ProgressNotes = v
	}
}
