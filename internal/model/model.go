// Package model defines the domain entities of the task engine: Plans,
// Tasks, their nested Step/PlanNode/TaskNode trees, checkpoint state,
// evidence records, and the events/operations attached to them.
package model

import "time"

// Kind distinguishes a Plan item from a Task item.
type Kind string

const (
	KindPlan Kind = "plan"
	KindTask Kind = "task"
)

// Status is the lifecycle status of an Item or TaskNode.
type Status string

const (
	StatusTODO   Status = "TODO"
	StatusActive Status = "ACTIVE"
	StatusDone   Status = "DONE"
)

// Priority is the importance tier of an Item.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// CheckpointKind names one of the five gating checkpoints.
type CheckpointKind string

const (
	CheckpointCriteria CheckpointKind = "criteria"
	CheckpointTests    CheckpointKind = "tests"
	CheckpointSecurity CheckpointKind = "security"
	CheckpointPerf     CheckpointKind = "perf"
	CheckpointDocs     CheckpointKind = "docs"
)

// AllCheckpointKinds lists every checkpoint kind in canonical order.
var AllCheckpointKinds = []CheckpointKind{
	CheckpointCriteria, CheckpointTests, CheckpointSecurity, CheckpointPerf, CheckpointDocs,
}

// DefaultRequiredCheckpoints is used whenever required_checkpoints is empty.
var DefaultRequiredCheckpoints = []CheckpointKind{CheckpointCriteria, CheckpointTests}

// CheckpointState is the gating state for one checkpoint on a Step or
// TaskNode: whether it has been confirmed, whether that confirmation was
// automatic (only ever true for "tests" when the field list was empty at
// creation), free-text notes, and linked evidence digests.
type CheckpointState struct {
	Confirmed     bool     `json:"confirmed" yaml:"confirmed"`
	AutoConfirmed bool     `json:"auto_confirmed" yaml:"auto_confirmed"`
	Notes         []string `json:"notes,omitempty" yaml:"notes,omitempty"`
	EvidenceRefs  []string `json:"evidence_refs,omitempty" yaml:"evidence_refs,omitempty"`
}

// Satisfied reports whether this checkpoint is considered satisfied for
// gating purposes (invariant 6): confirmed, whether explicitly or
// automatically.
func (c *CheckpointState) Satisfied() bool {
	if c == nil {
		return false
	}
	return c.Confirmed || c.AutoConfirmed
}

// Checkpoints is the full per-node checkpoint map, keyed by kind.
type Checkpoints map[CheckpointKind]*CheckpointState

// GetOrNil returns the state for kind, or nil when the map or the entry is
// absent; it never allocates (use Ensure for that).
func (c Checkpoints) GetOrNil(kind CheckpointKind) *CheckpointState {
	if c == nil {
		return nil
	}
	return c[kind]
}

// Ensure returns the CheckpointState for kind, allocating the map and
// entry if necessary.
func (c *Checkpoints) Ensure(kind CheckpointKind) *CheckpointState {
	if *c == nil {
		*c = Checkpoints{}
	}
	st, ok := (*c)[kind]
	if !ok {
		st = &CheckpointState{}
		(*c)[kind] = st
	}
	return st
}

func NewCheckpoints() Checkpoints {
	cp := Checkpoints{}
	for _, k := range AllCheckpointKinds {
		cp[k] = &CheckpointState{}
	}
	return cp
}

// VerificationCheck is a recorded verification outcome, content-addressed
// by a SHA-256 digest over its semantic fields.
type VerificationCheck struct {
	Kind       string    `json:"kind" yaml:"kind"`
	Spec       string    `json:"spec,omitempty" yaml:"spec,omitempty"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	ObservedAt time.Time `json:"observed_at" yaml:"observed_at"`
	Preview    string    `json:"preview,omitempty" yaml:"preview,omitempty"`
	Details    string    `json:"details,omitempty" yaml:"details,omitempty"`
	Digest     string    `json:"digest" yaml:"digest"`
}

// Attachment is a reference to stored or external evidence, content
// addressed by a SHA-256 digest over its semantic fields.
type Attachment struct {
	Kind        string            `json:"kind" yaml:"kind"`
	Path        string            `json:"path,omitempty" yaml:"path,omitempty"`
	URI         string            `json:"uri,omitempty" yaml:"uri,omitempty"`
	ExternalURI string            `json:"external_uri,omitempty" yaml:"external_uri,omitempty"`
	Size        int               `json:"size,omitempty" yaml:"size,omitempty"`
	Meta        map[string]string `json:"meta,omitempty" yaml:"meta,omitempty"`
	Digest      string            `json:"digest" yaml:"digest"`
}

// EventType enumerates the kinds of Event recorded against an Item.
type EventType string

const (
	EventCreated             EventType = "created"
	EventCheckpoint          EventType = "checkpoint"
	EventStatus              EventType = "status"
	EventBlocked             EventType = "blocked"
	EventUnblocked           EventType = "unblocked"
	EventSubtaskDone         EventType = "subtask_done"
	EventComment             EventType = "comment"
	EventDependencyAdded     EventType = "dependency_added"
	EventDependencyResolved  EventType = "dependency_resolved"
	EventContractUpdated     EventType = "contract_updated"
	EventPlanUpdated         EventType = "plan_updated"
	EventOverride            EventType = "override"
)

// Actor identifies who or what produced an Event.
type Actor string

const (
	ActorAI     Actor = "ai"
	ActorHuman  Actor = "human"
	ActorSystem Actor = "system"
)

// Event is an append-only history entry attached to an Item.
type Event struct {
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	EventType EventType      `json:"event_type" yaml:"event_type"`
	Actor     Actor          `json:"actor" yaml:"actor"`
	Target    string         `json:"target,omitempty" yaml:"target,omitempty"`
	Data      map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// ContractData is the structured portion of a Plan/Task contract.
type ContractData struct {
	Goal        string   `json:"goal,omitempty" yaml:"goal,omitempty"`
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Assumptions []string `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
	NonGoals    []string `json:"non_goals,omitempty" yaml:"non_goals,omitempty"`
	Done        []string `json:"done,omitempty" yaml:"done,omitempty"`
	Risks       []string `json:"risks,omitempty" yaml:"risks,omitempty"`
	Checks      []string `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// Equal reports whether c and other carry the same semantic content,
// used to decide whether a contract change warrants a new version snapshot.
func (c ContractData) Equal(other ContractData) bool {
	return stringsEqual(c.Constraints, other.Constraints) &&
		stringsEqual(c.Assumptions, other.Assumptions) &&
		stringsEqual(c.NonGoals, other.NonGoals) &&
		stringsEqual(c.Done, other.Done) &&
		stringsEqual(c.Risks, other.Risks) &&
		stringsEqual(c.Checks, other.Checks) &&
		c.Goal == other.Goal
}

func stringsEqual(a, b []string) bool {
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

// ContractVersion is a point-in-time snapshot of a contract, appended
// whenever the contract text, success_criteria, or contract_data change.
type ContractVersion struct {
	At              time.Time    `json:"at" yaml:"at"`
	Contract        string       `json:"contract" yaml:"contract"`
	SuccessCriteria []string     `json:"success_criteria,omitempty" yaml:"success_criteria,omitempty"`
	ContractData    ContractData `json:"contract_data" yaml:"contract_data"`
}

// Step is an ordered element of a Task's step tree.
type Step struct {
	ID                  string         `json:"id" yaml:"id"`
	Title               string         `json:"title" yaml:"title"`
	Completed           bool           `json:"completed" yaml:"completed"`
	SuccessCriteria     []string       `json:"success_criteria,omitempty" yaml:"success_criteria,omitempty"`
	Tests               []string       `json:"tests,omitempty" yaml:"tests,omitempty"`
	Blockers            []string       `json:"blockers,omitempty" yaml:"blockers,omitempty"`
	Checkpoints         Checkpoints    `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"`
	RequiredCheckpoints []CheckpointKind `json:"required_checkpoints,omitempty" yaml:"required_checkpoints,omitempty"`
	VerificationChecks  []VerificationCheck `json:"verification_checks,omitempty" yaml:"verification_checks,omitempty"`
	VerificationOutcome string         `json:"verification_outcome,omitempty" yaml:"verification_outcome,omitempty"`
	Attachments         []Attachment   `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	ProgressNotes       []string       `json:"progress_notes,omitempty" yaml:"progress_notes,omitempty"`
	StartedAt           *time.Time     `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Blocked             bool           `json:"blocked" yaml:"blocked"`
	BlockReason         string         `json:"block_reason,omitempty" yaml:"block_reason,omitempty"`
	Plan                *PlanNode      `json:"plan,omitempty" yaml:"plan,omitempty"`
}

// Required returns the effective required-checkpoints list, applying the
// default when the step did not configure one.
func (s *Step) Required() []CheckpointKind {
	if len(s.RequiredCheckpoints) == 0 {
		return DefaultRequiredCheckpoints
	}
	return s.RequiredCheckpoints
}

// ReadyForCompletion implements invariant 6 / testable property 2: a Step
// is ready to complete iff it is not blocked, every required checkpoint is
// satisfied, and (if it embeds a non-empty task tree) every TaskNode in
// that tree is done.
func (s *Step) ReadyForCompletion() bool {
	if s.Blocked {
		return false
	}
	for _, k := range s.Required() {
		if !s.Checkpoints.GetOrNil(k).Satisfied() {
			return false
		}
	}
	if s.Plan != nil && len(s.Plan.Tasks) > 0 {
		for i := range s.Plan.Tasks {
			if !s.Plan.Tasks[i].IsDone() {
				return false
			}
		}
	}
	return true
}

// MissingCheckpoints returns the required checkpoints that are not yet
// satisfied, in canonical order, for use in GATING_FAILED responses.
func (s *Step) MissingCheckpoints() []CheckpointKind {
	var missing []CheckpointKind
	for _, k := range s.Required() {
		if !s.Checkpoints.GetOrNil(k).Satisfied() {
			missing = append(missing, k)
		}
	}
	return missing
}

// PlanNode is embedded inside a Step, representing a nested plan→tasks
// recursion point.
type PlanNode struct {
	Doc         string       `json:"doc,omitempty" yaml:"doc,omitempty"`
	Steps       []string     `json:"steps,omitempty" yaml:"steps,omitempty"`
	Current     uint         `json:"current" yaml:"current"`
	Tasks       []TaskNode   `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	Checkpoints Checkpoints  `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"`
}

// TaskNode is embedded inside a PlanNode: it mirrors an Item Task minus
// persistence fields, carrying its own id and nested step tree.
type TaskNode struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Status       Status   `json:"status" yaml:"status"`
	StatusManual bool     `json:"status_manual" yaml:"status_manual"`
	Blocked      bool     `json:"blocked" yaml:"blocked"`
	Steps        []Step   `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// IsDone implements the TaskNode half of invariant 6: not blocked, and
// either explicitly DONE (when status is manually managed) or at 100%
// aggregate step-tree progress.
func (t *TaskNode) IsDone() bool {
	if t.Blocked {
		return false
	}
	if t.StatusManual {
		return t.Status == StatusDone
	}
	return StepTreeProgress(t.Steps) == 100
}

// Item is the file-backed root unit: a Plan or a Task. The two kind-
// specific payloads are carried as optional fields rather than a literal
// union, mirroring how the teacher structures role-specific request
// payloads.
type Item struct {
	ID               string            `json:"id" yaml:"id"`
	Kind             Kind              `json:"kind" yaml:"kind"`
	Title            string            `json:"title" yaml:"title"`
	Status           Status            `json:"status" yaml:"status"`
	StatusManual     bool              `json:"status_manual" yaml:"status_manual"`
	Priority         Priority          `json:"priority" yaml:"priority"`
	Domain           string            `json:"domain,omitempty" yaml:"domain,omitempty"`
	Parent           string            `json:"parent,omitempty" yaml:"parent,omitempty"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Context          string            `json:"context,omitempty" yaml:"context,omitempty"`
	Contract         string            `json:"contract,omitempty" yaml:"contract,omitempty"`
	ContractData     ContractData      `json:"contract_data,omitempty" yaml:"contract_data,omitempty"`
	ContractVersions []ContractVersion `json:"contract_versions,omitempty" yaml:"contract_versions,omitempty"`
	SuccessCriteria  []string          `json:"success_criteria,omitempty" yaml:"success_criteria,omitempty"`
	Tests            []string          `json:"tests,omitempty" yaml:"tests,omitempty"`
	Blockers         []string          `json:"blockers,omitempty" yaml:"blockers,omitempty"`
	Tags             []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	DependsOn        []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Blocked          bool              `json:"blocked" yaml:"blocked"`
	Revision         uint64            `json:"revision" yaml:"revision"`
	Created          time.Time         `json:"created" yaml:"created"`
	Updated          time.Time         `json:"updated" yaml:"updated"`
	Events           []Event           `json:"events,omitempty" yaml:"events,omitempty"`

	// Plan-specific.
	PlanDoc     string   `json:"plan_doc,omitempty" yaml:"plan_doc,omitempty"`
	PlanSteps   []string `json:"plan_steps,omitempty" yaml:"plan_steps,omitempty"`
	PlanCurrent uint     `json:"plan_current" yaml:"plan_current"`

	// Task-specific.
	Steps []Step `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// IsPlan reports whether the Item is a Plan.
func (it *Item) IsPlan() bool { return it.Kind == KindPlan }

// IsTask reports whether the Item is a Task.
func (it *Item) IsTask() bool { return it.Kind == KindTask }

// ClampPlanCurrent enforces invariant 3: plan_current ∈ [0, len(plan_steps)].
func (it *Item) ClampPlanCurrent() {
	n := uint(len(it.PlanSteps))
	if it.PlanCurrent > n {
		it.PlanCurrent = n
	}
}

// Progress implements testable property 3 / spec §3 invariant 7: the
// percentage of completed Steps across the full recursive step tree.
func (it *Item) Progress() int {
	return StepTreeProgress(it.Steps)
}

// StepTreeProgress computes the percentage of completed steps across a
// step tree, walking TaskNode sub-trees inclusively via an explicit stack
// (iterative pre-order, per the "no recursive walks" design note).
func StepTreeProgress(steps []Step) int {
	total, done := countSteps(steps)
	if total == 0 {
		return 100
	}
	return done * 100 / total
}

type stepFrame struct {
	steps []Step
	idx   int
}

// countSteps walks the Step/PlanNode/TaskNode tree iteratively with an
// explicit stack, counting total and completed steps inclusive of nested
// TaskNode step trees.
func countSteps(root []Step) (total, done int) {
	if len(root) == 0 {
		return 0, 0
	}
	stack := []stepFrame{{steps: root}}
	for len(stack) > 0 {
		frame := &stack[len(stack)-1]
		if frame.idx >= len(frame.steps) {
			stack = stack[:len(stack)-1]
			continue
		}
		s := &frame.steps[frame.idx]
		frame.idx++
		total++
		if s.Completed {
			done++
		}
		if s.Plan != nil {
			for ti := range s.Plan.Tasks {
				if len(s.Plan.Tasks[ti].Steps) > 0 {
					stack = append(stack, stepFrame{steps: s.Plan.Tasks[ti].Steps})
				}
			}
		}
	}
	return total, done
}

// UpdateStatusFromProgress auto-promotes status to DONE when progress is
// 100%, the item is not blocked, status is not manually managed, and there
// is at least one step (§4.1 load-time auto-promotion rule).
func (it *Item) UpdateStatusFromProgress() {
	if it.StatusManual || it.Blocked || it.IsPlan() {
		return
	}
	if len(it.Steps) == 0 {
		return
	}
	if it.Progress() == 100 {
		it.Status = StatusDone
	} else if it.Status == StatusDone {
		it.Status = StatusActive
	}
}
