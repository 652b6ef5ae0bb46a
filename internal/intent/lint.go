package intent

import (
	"fmt"

	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/model"
)

// LintIssue is one entry of a lint report.
type LintIssue struct {
	Code     string         `json:"code"`
	Severity string         `json:"severity"` // "error" | "warning"
	Message  string         `json:"message"`
	Target   string         `json:"target,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// minStepTitleLen is the floor under which a step title is flagged short.
const minStepTitleLen = 8

// Lint runs every category named in §4.3.4 against item and returns the
// issues found, in a stable order.
func Lint(item *model.Item) []LintIssue {
	var issues []LintIssue

	if item.IsTask() && len(item.SuccessCriteria) == 0 {
		issues = append(issues, LintIssue{
			Code: "MISSING_SUCCESS_CRITERIA", Severity: "error",
			Message: "task has no success_criteria", Target: item.ID,
		})
	}

	lintSteps(item.Steps, item.ID, &issues)

	if len(item.DependsOn) > 0 {
		seen := map[string]bool{}
		for _, dep := range item.DependsOn {
			if seen[dep] {
				issues = append(issues, LintIssue{
					Code: "DUPLICATE_DEPENDS_ON", Severity: "warning",
					Message: fmt.Sprintf("duplicate dependency %s", dep), Target: item.ID,
				})
			}
			seen[dep] = true
		}
	}

	if item.IsPlan() && item.PlanCurrent > uint(len(item.PlanSteps)) {
		issues = append(issues, LintIssue{
			Code: "PLAN_CURRENT_OUT_OF_RANGE", Severity: "error",
			Message: "plan_current exceeds plan_steps length", Target: item.ID,
		})
	}

	return issues
}

func lintSteps(steps []model.Step, taskID string, issues *[]LintIssue) {
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

		if len(s.SuccessCriteria) == 0 && len(s.Tests) == 0 && len(s.Blockers) == 0 {
			*issues = append(*issues, LintIssue{
				Code: "STEP_MISSING_CRITERIA", Severity: "warning",
				Message: "step has no success_criteria, tests, or blockers", Target: s.ID,
			})
		}
		if len(s.Title) < minStepTitleLen {
			*issues = append(*issues, LintIssue{
				Code: "STEP_TITLE_TOO_SHORT", Severity: "warning",
				Message: "step title is too short to be actionable", Target: s.ID,
			})
		}
		for _, k := range model.AllCheckpointKinds {
			st := s.Checkpoints.GetOrNil(k)
			if st != nil && st.Confirmed && len(st.EvidenceRefs) == 0 {
				*issues = append(*issues, LintIssue{
					Code: "CHECKPOINT_CONFIRMED_WITHOUT_EVIDENCE", Severity: "warning",
					Message: fmt.Sprintf("checkpoint %s confirmed without evidence", k), Target: s.ID,
				})
			}
		}
		if s.Plan != nil {
			for ti := range s.Plan.Tasks {
				if len(s.Plan.Tasks[ti].Steps) > 0 {
					stack = append(stack, frame{steps: s.Plan.Tasks[ti].Steps})
				}
			}
		}
	}
}

// ErrorIssues filters a lint report down to severity=error entries.
func ErrorIssues(issues []LintIssue) []LintIssue {
	var out []LintIssue
	for _, i := range issues {
		if i.Severity == "error" {
			out = append(out, i)
		}
	}
	return out
}

func handleLint(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	res, ferr := d.resolveFocus(req, "any")
	if ferr != nil {
		return errorResponseWithResp(req.Intent, ferr)
	}
	item, err := d.Repo.Load(res.ID, res.Domain)
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.NotFound, "%s not found", res.ID))
	}
	issues := Lint(item)
	result := map[string]any{"issues": issues, "error_count": len(ErrorIssues(issues))}
	return resp.ok().withResult(result)
}
