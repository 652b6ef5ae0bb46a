package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactText_SecretShapedTokens(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"github pat", "token: ghp_abcdefghijklmnopqrstuv end", "token: <redacted> end"},
		{"bearer header", "Authorization: Bearer abc123def456ghi789", "Authorization: Bearer <redacted>"},
		{"key=value", "api_key=sk-abcdefghijklmnopqrstuv&next=1", "api_key=<redacted>&next=1"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, c.want, RedactText(c.input))
		})
	}
}

func TestRedactText_LeavesOrdinaryTextAlone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ordinary command output", RedactText("ordinary command output"))
}

func TestRedact_BlanksSensitiveKeysAndRecurses(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"password": "hunter2",
		"details": map[string]any{
			"output": "token=ghp_abcdefghijklmnopqrstuv",
		},
	}
	out := Redact(in).(map[string]any)
	assert.Equal(t, "<redacted>", out["password"])
	nested := out["details"].(map[string]any)
	assert.Equal(t, "token=<redacted>", nested["output"])
}

func TestRedact_StopsAtDepthBound(t *testing.T) {
	t.Parallel()

	secret := "api_key=sk-abcdefghijklmnopqrstuv"
	var deep any = secret
	for i := 0; i < RedactDepth+2; i++ {
		deep = map[string]any{"nest": deep}
	}

	out := Redact(deep)
	for i := 0; i < RedactDepth; i++ {
		out = out.(map[string]any)["nest"]
	}
	// Beyond RedactDepth, redact returns the remaining substructure
	// untouched, so the original secret string still appears verbatim.
	assert.Equal(t, secret, out.(map[string]any)["nest"].(map[string]any)["nest"])
}
