package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_RunsOpsSequentially(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{
		"intent": "batch",
		"ops": []any{
			map[string]any{"intent": "create", "kind": "task", "title": "first"},
			map[string]any{"intent": "create", "kind": "task", "title": "second"},
		},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, 2, resp.Result["completed"])
	assert.Equal(t, 2, resp.Result["total"])
}

func TestBatch_NonAtomicStopsEarlyButKeepsPriorWork(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{
		"intent": "batch",
		"ops": []any{
			map[string]any{"intent": "create", "kind": "task", "title": "first"},
			map[string]any{"intent": "not_a_real_intent"},
			map[string]any{"intent": "create", "kind": "task", "title": "never reached"},
		},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, 1, resp.Result["completed"])
	assert.NotEmpty(t, resp.Warnings)

	list := d.Process(map[string]any{"intent": "context"})
	require.True(t, list.Success, "%+v", list.Error)
}

func TestBatch_AtomicRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{
		"intent": "batch",
		"atomic": true,
		"ops": []any{
			map[string]any{"intent": "create", "kind": "task", "title": "will be rolled back"},
			map[string]any{"intent": "not_a_real_intent"},
		},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, true, resp.Result["rolled_back"])

	entries, err := d.Repo.List("")
	require.NoError(t, err)
	assert.Empty(t, entries, "the first op's created task must not survive a rolled-back atomic batch")
}

func TestBatch_RejectsEmptyOpsList(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	resp := d.Process(map[string]any{"intent": "batch", "ops": []any{}})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
}
