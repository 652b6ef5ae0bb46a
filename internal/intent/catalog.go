package intent

// buildCatalog wires every intent named in §4.3.4 to its handler and
// dispatch shape. targetKind constrains focus-fallback compatibility:
// "plan" (plan-only), "task" (task-only), "any" (item-level), or ""
// (no single-item target, e.g. context/batch).
func (d *Dispatcher) buildCatalog() map[string]intentSpec {
	return map[string]intentSpec{
		// Read-only / navigational.
		"context":        {handler: handleContext},
		"focus_get":      {handler: handleFocusGet},
		"focus_set":      {handler: handleFocusSet},
		"focus_clear":    {handler: handleFocusClear},
		"radar":          {handler: handleRadar, targetKind: "any"},
		"handoff":        {handler: handleHandoff, targetKind: "any"},
		"context_pack":   {handler: handleContextPack, targetKind: "any"},
		"resume":         {handler: handleResume, targetKind: "any"},
		"mirror":         {handler: handleMirror, targetKind: "any"},
		"lint":           {handler: handleLint, targetKind: "any"},
		"templates_list": {handler: handleTemplatesList},
		"history":        {handler: handleHistory},
		"delta":          {handler: handleDelta},
		"storage":        {handler: handleStorage},

		// Creation. create/scaffold have no pre-existing focus target to
		// resolve, but still record history as a create-like operation
		// (§4.3.4's scaffold entry: "undo = delete").
		"create":      {handler: handleCreate, mutating: true},
		"scaffold":    {handler: handleScaffold, mutating: true},
		"decompose":   {handler: handleDecompose, mutating: true, targetKind: "task"},
		"task_add":    {handler: handleTaskAdd, mutating: true, targetKind: "task"},
		"task_define": {handler: handleTaskDefine, mutating: true, targetKind: "task"},

		// Mutation.
		"edit":             {handler: handleEdit, mutating: true, targetKind: "any"},
		"patch":            {handler: handlePatch, mutating: true, targetKind: "any"},
		"define":           {handler: handleDefine, mutating: true, targetKind: "task"},
		"verify":           {handler: handleVerify, mutating: true, targetKind: "any"},
		"evidence_capture": {handler: handleEvidenceCapture, mutating: true, targetKind: "task"},
		"progress":         {handler: handleProgress, mutating: true, targetKind: "task"},
		"done":             {handler: handleDone, mutating: true, targetKind: "task"},
		"close_step":       {handler: handleCloseStep, mutating: true, targetKind: "task"},
		"note":             {handler: handleNote, mutating: true, targetKind: "task"},
		"block":            {handler: handleBlock, mutating: true, targetKind: "task"},
		"contract":         {handler: handleContract, mutating: true, targetKind: "plan"},
		"plan":             {handler: handlePlanAdvance, mutating: true, targetKind: "plan"},
		"complete":         {handler: handleComplete, mutating: true, targetKind: "any"},
		"close_task":       {handler: handleCloseTask, mutating: true, targetKind: "task"},
		"delete":           {handler: handleDelete, mutating: true, targetKind: "any"},
		"task_delete":      {handler: handleTaskDelete, mutating: true, targetKind: "task"},
		"undo":             {handler: handleUndo},
		"redo":             {handler: handleRedo},

		// Batching.
		"batch": {handler: handleBatch},
	}
}
