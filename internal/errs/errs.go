// Package errs defines the stable error-code taxonomy returned by the
// intent dispatcher and carried through the response envelope.
package errs

import "fmt"

// Code is one of the stable, enumerated error codes the dispatcher may
// return. Callers match on Code, not on Message, which is free text.
type Code string

// Validation errors.
const (
	MissingIntent           Code = "MISSING_INTENT"
	UnknownIntent           Code = "UNKNOWN_INTENT"
	InvalidRequest          Code = "INVALID_REQUEST"
	InvalidID               Code = "INVALID_ID"
	InvalidTask             Code = "INVALID_TASK"
	InvalidPlan             Code = "INVALID_PLAN"
	InvalidPath             Code = "INVALID_PATH"
	InvalidStepID           Code = "INVALID_STEP_ID"
	InvalidTaskNodeID       Code = "INVALID_TASK_NODE_ID"
	InvalidKind             Code = "INVALID_KIND"
	InvalidLimit            Code = "INVALID_LIMIT"
	InvalidMaxChars         Code = "INVALID_MAX_CHARS"
	InvalidChecks           Code = "INVALID_CHECKS"
	InvalidAttachments      Code = "INVALID_ATTACHMENTS"
	InvalidSteps            Code = "INVALID_STEPS"
	InvalidTags             Code = "INVALID_TAGS"
	InvalidDependsOn        Code = "INVALID_DEPENDS_ON"
	InvalidExpectedRevision Code = "INVALID_EXPECTED_REVISION"
	InvalidExpectedTargetID Code = "INVALID_EXPECTED_TARGET_ID"
	InvalidExpectedKind     Code = "INVALID_EXPECTED_KIND"
	InvalidFilter           Code = "INVALID_FILTER"
	InvalidPagination       Code = "INVALID_PAGINATION"
	InvalidCheckpoint       Code = "INVALID_CHECKPOINT"
	InvalidOp               Code = "INVALID_OP"
	InvalidValue            Code = "INVALID_VALUE"
	InvalidField            Code = "INVALID_FIELD"
	ForbiddenField          Code = "FORBIDDEN_FIELD"
	InvalidArtifactKind     Code = "INVALID_ARTIFACT_KIND"
	InvalidArtifacts        Code = "INVALID_ARTIFACTS"
	InvalidDependencies     Code = "INVALID_DEPENDENCIES"
	CircularDependency      Code = "CIRCULAR_DEPENDENCY"
	TooManyArtifacts        Code = "TOO_MANY_ARTIFACTS"
)

// Targeting / concurrency errors.
const (
	MissingTarget                            Code = "MISSING_TARGET"
	MissingTask                              Code = "MISSING_TASK"
	MissingPlan                              Code = "MISSING_PLAN"
	MissingParent                            Code = "MISSING_PARENT"
	NotFound                                 Code = "NOT_FOUND"
	ParentNotFound                           Code = "PARENT_NOT_FOUND"
	NotATask                                 Code = "NOT_A_TASK"
	NotAPlan                                 Code = "NOT_A_PLAN"
	FocusIncompatible                        Code = "FOCUS_INCOMPATIBLE"
	ExpectedTargetMismatch                   Code = "EXPECTED_TARGET_MISMATCH"
	StrictTargetingRequiresExpectedTargetID  Code = "STRICT_TARGETING_REQUIRES_EXPECTED_TARGET_ID"
	RevisionMismatch                         Code = "REVISION_MISMATCH"
	PathNotFound                             Code = "PATH_NOT_FOUND"
	StepIDNotFound                           Code = "STEP_ID_NOT_FOUND"
	TaskNodeIDNotFound                       Code = "TASK_NODE_ID_NOT_FOUND"
)

// Semantic gating errors.
const (
	GatingFailed        Code = "GATING_FAILED"
	VerifyNoop          Code = "VERIFY_NOOP"
	MissingOverrideReas Code = "MISSING_OVERRIDE_REASON"
	LintErrorsBlocking  Code = "LINT_ERRORS_BLOCKING"
	RunwayClosed        Code = "RUNWAY_CLOSED"
)

// History errors.
const (
	NothingToUndo  Code = "NOTHING_TO_UNDO"
	NothingToRedo  Code = "NOTHING_TO_REDO"
	UndoFailed     Code = "UNDO_FAILED"
	RedoFailed     Code = "REDO_FAILED"
	SinceNotFound  Code = "SINCE_NOT_FOUND"
)

// Internal errors.
const (
	InternalError Code = "INTERNAL_ERROR"
	BatchFailed   Code = "BATCH_FAILED"
	DeltaFailed   Code = "DELTA_FAILED"
)

// Error is a handler-level failure carrying a stable Code, a free-text
// Message, and an optional Recovery hint naming the intent(s) that should
// be invoked next. It implements the standard error interface so handlers
// can return it (or wrap it) like any other Go error.
type Error struct {
	Code     Code
	Message  string
	Recovery string
	// Result carries structured detail for the response's result field
	// (e.g. {expected_revision, current_revision} for RevisionMismatch).
	Result map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithRecovery returns a copy of e with Recovery set.
func (e *Error) WithRecovery(recovery string) *Error {
	clone := *e
	clone.Recovery = recovery
	return &clone
}

// WithResult returns a copy of e with Result set.
func (e *Error) WithResult(result map[string]any) *Error {
	clone := *e
	clone.Result = result
	return &clone
}
