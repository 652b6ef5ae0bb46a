package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrDefault_FallsBackOnlyWhenEmpty(t *testing.T) {
	assert.Equal(t, "nothing to undo", orDefault("", "nothing to undo"))
	assert.Equal(t, "custom message", orDefault("custom message", "nothing to undo"))
}
