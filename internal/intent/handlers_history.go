package intent

import (
	"github.com/apply-task/taskengine/internal/errs"
)

// handleUndo reverts the most recent un-undone operation, per §4.4.
func handleUndo(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	ok, msg, op, err := d.History.Undo()
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.UndoFailed, "%v", err))
	}
	if !ok {
		return errorResponse(req.Intent, errs.New(errs.NothingToUndo, "%s", orDefault(msg, "nothing to undo")))
	}
	return resp.ok().withResult(map[string]any{"operation": op})
}

// handleRedo re-applies the most recently undone operation, per §4.4.
func handleRedo(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	ok, msg, op, err := d.History.Redo()
	if err != nil {
		return errorResponse(req.Intent, errs.New(errs.RedoFailed, "%v", err))
	}
	if !ok {
		return errorResponse(req.Intent, errs.New(errs.NothingToRedo, "%s", orDefault(msg, "nothing to redo")))
	}
	return resp.ok().withResult(map[string]any{"operation": op})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
