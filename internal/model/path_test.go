package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidStepPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{"s:0", true},
		{"s:0.t:1", true},
		{"s:0.t:1.s:2", true},
		{"s:0.t:1.s:2.t:3", true},
		{"", false},
		{"t:0", false},
		{"s:0.s:1", false},
		{"s:x", false},
		{"s:0.", false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, ValidStepPath(c.path), "path %q", c.path)
	}
}

func TestParsePath_ExceedsNesting(t *testing.T) {
	t.Parallel()

	path := "s:0"
	for i := 0; i < MaxPathNesting; i++ {
		path += ".t:0.s:0"
	}
	_, err := ParsePath(path)
	require.Error(t, err)
}

func TestResolveStep(t *testing.T) {
	t.Parallel()

	root := []Step{
		{ID: "a", Title: "outer"},
		{
			ID:    "b",
			Title: "has nested plan",
			Plan: &PlanNode{
				Tasks: []TaskNode{
					{ID: "t0", Steps: []Step{{ID: "c", Title: "nested"}}},
				},
			},
		},
	}

	got, err := ResolveStep(root, "s:1.t:0.s:0")
	require.NoError(t, err)
	assert.Equal(t, "c", got.ID)

	got.Title = "mutated"
	assert.Equal(t, "mutated", root[1].Plan.Tasks[0].Steps[0].Title)

	_, err = ResolveStep(root, "s:5")
	require.Error(t, err)

	_, err = ResolveStep(root, "s:1.t:0")
	require.Error(t, err, "path ending in a task node is not a step")
}

func TestResolveTaskNode(t *testing.T) {
	t.Parallel()

	root := []Step{
		{
			ID: "a",
			Plan: &PlanNode{
				Tasks: []TaskNode{{ID: "t0", Title: "child"}},
			},
		},
	}

	node, err := ResolveTaskNode(root, "s:0.t:0")
	require.NoError(t, err)
	assert.Equal(t, "t0", node.ID)

	_, err = ResolveTaskNode(root, "s:0")
	require.Error(t, err, "path ending in a step is not a task node")
}

func TestEndsInTaskNode(t *testing.T) {
	t.Parallel()

	assert.True(t, EndsInTaskNode("s:0.t:1"))
	assert.False(t, EndsInTaskNode("s:0.t:1.s:2"))
}
