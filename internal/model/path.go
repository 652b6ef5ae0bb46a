package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxPathNesting bounds the depth of a step path (§6.3).
const MaxPathNesting = 24

// stepPathPattern matches s:\d+(\.t:\d+\.s:\d+)*(\.t:\d+)? — an initial
// step segment, any number of (task-node, step) pairs, and an optional
// trailing task-node segment.
var stepPathPattern = regexp.MustCompile(`^s:\d+(\.t:\d+\.s:\d+)*(\.t:\d+)?$`)

// PathSegment is one "s:<n>" or "t:<n>" component of a resolved step path.
type PathSegment struct {
	IsTaskNode bool
	Index      int
}

// ValidStepPath reports whether path matches the step-path grammar.
func ValidStepPath(path string) bool {
	if path == "" {
		return false
	}
	return stepPathPattern.MatchString(path)
}

// ParsePath splits a validated step path into its segments and enforces
// the nesting bound.
func ParsePath(path string) ([]PathSegment, error) {
	if !ValidStepPath(path) {
		return nil, fmt.Errorf("invalid step path %q", path)
	}
	parts := strings.Split(path, ".")
	if len(parts) > MaxPathNesting {
		return nil, fmt.Errorf("step path %q exceeds max nesting %d", path, MaxPathNesting)
	}
	segs := make([]PathSegment, 0, len(parts))
	for _, p := range parts {
		kindSep := strings.SplitN(p, ":", 2)
		if len(kindSep) != 2 {
			return nil, fmt.Errorf("invalid step path segment %q", p)
		}
		n, err := strconv.Atoi(kindSep[1])
		if err != nil {
			return nil, fmt.Errorf("invalid step path segment %q: %w", p, err)
		}
		segs = append(segs, PathSegment{IsTaskNode: kindSep[0] == "t", Index: n})
	}
	return segs, nil
}

// EndsInTaskNode reports whether path resolves to a TaskNode rather than a
// Step, i.e. its final segment is "t:<n>".
func EndsInTaskNode(path string) bool {
	parts := strings.Split(path, ".")
	return strings.HasPrefix(parts[len(parts)-1], "t:")
}

// ResolveStep walks root's step tree per the parsed path and returns a
// pointer to the target Step. An error names the missing segment.
func ResolveStep(root []Step, path string) (*Step, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if segs[len(segs)-1].IsTaskNode {
		return nil, fmt.Errorf("path %q resolves to a task node, not a step", path)
	}
	steps := root
	var cur *Step
	for i, seg := range segs {
		if seg.IsTaskNode {
			if cur == nil || cur.Plan == nil || seg.Index >= len(cur.Plan.Tasks) {
				return nil, fmt.Errorf("task node index %d not found at segment %d of %q", seg.Index, i, path)
			}
			steps = cur.Plan.Tasks[seg.Index].Steps
			cur = nil
		} else {
			if seg.Index >= len(steps) {
				return nil, fmt.Errorf("step index %d not found at segment %d of %q", seg.Index, i, path)
			}
			cur = &steps[seg.Index]
		}
	}
	if cur == nil {
		return nil, fmt.Errorf("path %q did not resolve to a step", path)
	}
	return cur, nil
}

// ResolveTaskNode walks root's step tree per the parsed path and returns a
// pointer to the target TaskNode; path must end in a "t:<n>" segment.
func ResolveTaskNode(root []Step, path string) (*TaskNode, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if !segs[len(segs)-1].IsTaskNode {
		return nil, fmt.Errorf("path %q resolves to a step, not a task node", path)
	}
	steps := root
	var cur *Step
	var node *TaskNode
	for i, seg := range segs {
		if seg.IsTaskNode {
			if cur == nil || cur.Plan == nil || seg.Index >= len(cur.Plan.Tasks) {
				return nil, fmt.Errorf("task node index %d not found at segment %d of %q", seg.Index, i, path)
			}
			node = &cur.Plan.Tasks[seg.Index]
			steps = node.Steps
			cur = nil
		} else {
			if seg.Index >= len(steps) {
				return nil, fmt.Errorf("step index %d not found at segment %d of %q", seg.Index, i, path)
			}
			cur = &steps[seg.Index]
			node = nil
		}
	}
	if node == nil {
		return nil, fmt.Errorf("path %q did not resolve to a task node", path)
	}
	return node, nil
}
