package intent

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"

	"github.com/apply-task/taskengine/internal/errs"
	"github.com/apply-task/taskengine/internal/evidence"
	"github.com/apply-task/taskengine/internal/history"
	"github.com/apply-task/taskengine/internal/model"
	"github.com/apply-task/taskengine/internal/repository"
)

// handlerFunc is the pure-function shape every intent handler conforms
// to: (dispatcher, request) -> response. Handlers never write to history
// themselves; Process does that uniformly after a successful mutation.
type handlerFunc func(d *Dispatcher, req *Request) *Response

// intentSpec describes one catalog entry's dispatch-relevant shape.
type intentSpec struct {
	handler handlerFunc
	// mutating intents participate in focus fallback, safe-writes, and
	// history recording; read-only intents do not (unless audit=true).
	mutating bool
	// targetKind constrains which focus kind satisfies fallback:
	// "plan", "task", "any", or "" (no target needed).
	targetKind string
}

// Dispatcher is the single entry point process_intent(req) described in
// §4.3: it owns the repository, focus store, evidence store, and
// operation history for one tasks root.
type Dispatcher struct {
	Repo     *repository.Repository
	Focus    *repository.FocusStore
	History  *history.History
	Evidence *evidence.Store

	catalog map[string]intentSpec
}

// New builds a Dispatcher over the given tasks root components.
func New(repo *repository.Repository, focus *repository.FocusStore, hist *history.History, ev *evidence.Store) *Dispatcher {
	d := &Dispatcher{Repo: repo, Focus: focus, History: hist, Evidence: ev}
	d.catalog = d.buildCatalog()
	return d
}

// Process is the single entry point: it validates shape, applies focus
// fallback / safe-writes / optimistic-concurrency preflight, routes to a
// handler, and — for mutating intents — records history.
func (d *Dispatcher) Process(raw map[string]any) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic in intent handler")
			resp = errorResponse("", errs.New(errs.InternalError, "internal error: %v", r))
		}
	}()

	intentName, _ := raw["intent"].(string)
	if intentName == "" {
		return errorResponse("", errs.New(errs.MissingIntent, "intent is required"))
	}
	spec, ok := d.catalog[intentName]
	if !ok {
		return errorResponse(intentName, errs.New(errs.UnknownIntent, "unknown intent %q", intentName))
	}

	req, err := decodeRequest(intentName, raw)
	if err != nil {
		return errorResponse(intentName, errs.New(errs.InvalidRequest, "%v", err))
	}

	var resolution *TargetResolution
	if spec.mutating && spec.targetKind != "" {
		res, ferr := d.resolveFocus(req, spec.targetKind)
		if ferr != nil {
			return errorResponseWithResp(intentName, ferr)
		}
		resolution = res
	}

	if spec.mutating && resolution != nil {
		if gerr := d.safeWritesGuard(req, resolution); gerr != nil {
			return errorResponseWithResp(intentName, gerr)
		}
	}

	var beforeItem *model.Item
	if spec.mutating && resolution != nil {
		item, lerr := d.Repo.Load(resolution.ID, resolution.Domain)
		if lerr == nil {
			beforeItem = item
		}
		if req.ExpectedRevision != nil {
			if lerr != nil {
				return errorResponse(intentName, errs.New(errs.NotFound, "target %s not found", resolution.ID))
			}
			if item.Revision != *req.ExpectedRevision {
				e := errs.New(errs.RevisionMismatch, "revision mismatch").
					WithRecovery("resume").
					WithResult(map[string]any{"expected_revision": *req.ExpectedRevision, "current_revision": item.Revision})
				return errorResponseWithResp(intentName, e)
			}
		}
	}

	resp = spec.handler(d, req)
	resp.Intent = intentName

	if resp.Success && spec.mutating {
		d.recordHistory(intentName, req, resolution, beforeItem, resp)
	} else if req.Audit || (!spec.mutating && req.DryRun) {
		d.recordAudit(intentName, req, resp)
	}
	return resp
}

func (d *Dispatcher) recordHistory(intentName string, req *Request, resolution *TargetResolution, beforeItem *model.Item, resp *Response) {
	var taskFile string
	var taskID string
	if resolution != nil {
		taskID = resolution.ID
		if path, err := d.Repo.ResolveForHistory(resolution.ID, resolution.Domain); err == nil {
			taskFile = path
		}
	} else if id, domain, ok := createdItemRef(resp); ok {
		// create/scaffold have no focus target to resolve against; recover
		// the id/domain of the item the handler just created so undo can
		// still find it (beforeItem stays nil, so TakeSnapshot below is
		// already false — undo deletes rather than restoring a snapshot).
		taskID = id
		if path, err := d.Repo.ResolveForHistory(id, domain); err == nil {
			taskFile = path
		}
	}
	opts := history.RecordOpts{TaskFile: taskFile, TakeSnapshot: true}
	if beforeItem == nil {
		opts.TakeSnapshot = false
	}
	op, err := d.History.Record(intentName, taskID, req.Raw, resp.Result, opts)
	if err != nil {
		log.Warn().Err(err).Msg("failed to record operation history")
		return
	}
	meta := resp.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	meta["operation_id"] = op.ID
	resp.Meta = meta
}

// createdItemRef extracts the id/domain of a just-created item from a
// create/scaffold response's result, so recordHistory can attribute the
// history entry to it despite there being no focus resolution to resolve
// against. scaffold's plan is the attributed target; its child tasks are
// not separately recorded.
func createdItemRef(resp *Response) (id, domain string, ok bool) {
	for _, key := range []string{"task", "plan"} {
		m, exists := resp.Result[key].(map[string]any)
		if !exists {
			continue
		}
		id, _ = m["id"].(string)
		domain, _ = m["domain"].(string)
		if id != "" {
			return id, domain, true
		}
	}
	return "", "", false
}

func (d *Dispatcher) recordAudit(intentName string, req *Request, resp *Response) {
	op, err := d.History.Record(intentName, req.Task, req.Raw, resp.Result, history.RecordOpts{Stream: history.StreamAudit})
	if err != nil {
		log.Warn().Err(err).Msg("failed to record audit entry")
		return
	}
	meta := resp.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	meta["audit_operation_id"] = op.ID
	resp.Meta = meta
}

// decodeRequest lifts common envelope fields out of raw into a Request,
// keeping Raw available for intent-specific nested payloads.
func decodeRequest(intentName string, raw map[string]any) (*Request, error) {
	req := &Request{Intent: intentName, Raw: raw}
	var common struct {
		Task             string `mapstructure:"task"`
		Plan             string `mapstructure:"plan"`
		Path             string `mapstructure:"path"`
		ExpectedRevision *uint64 `mapstructure:"expected_revision"`
		ExpectedTargetID string `mapstructure:"expected_target_id"`
		ExpectedTarget   string `mapstructure:"expected_target"`
		ExpectedKind     string `mapstructure:"expected_kind"`
		StrictTargeting  bool   `mapstructure:"strict_targeting"`
		Audit            bool   `mapstructure:"audit"`
		DryRun           bool   `mapstructure:"dry_run"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &common, WeaklyTypedInput: true})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	req.Task = strings.TrimSpace(common.Task)
	req.Plan = strings.TrimSpace(common.Plan)
	req.Path = common.Path
	req.ExpectedRevision = common.ExpectedRevision
	req.ExpectedTargetID = common.ExpectedTargetID
	if req.ExpectedTargetID == "" {
		req.ExpectedTargetID = common.ExpectedTarget
	}
	req.ExpectedKind = common.ExpectedKind
	req.StrictTargeting = common.StrictTargeting
	req.Audit = common.Audit
	req.DryRun = common.DryRun
	return req, nil
}

func errorResponse(intentName string, e *errs.Error) *Response {
	resp := newResponse(intentName)
	resp.Success = false
	resp.Error = &ResponseError{Code: string(e.Code), Message: e.Message, Recovery: e.Recovery}
	if e.Result != nil {
		resp.Result = e.Result
	}
	return resp
}

func errorResponseWithResp(intentName string, e *errs.Error) *Response {
	return errorResponse(intentName, e)
}
