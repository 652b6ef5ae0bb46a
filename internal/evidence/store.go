package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/apply-task/taskengine/internal/atomicfile"
)

// ArtifactsDirname is the fixed sub-directory name for the blob store.
const ArtifactsDirname = ".artifacts"

// MaxArtifactBytes is the UTF-8 truncation cap applied to stored artifact
// payloads (cmd_output / diff): 256 KiB.
const MaxArtifactBytes = 256 * 1024

// Store is a content-addressed blob store rooted at <tasksRoot>/.artifacts/.
type Store struct {
	root string
}

// NewStore returns a Store rooted at tasksRoot.
func NewStore(tasksRoot string) *Store {
	return &Store{root: tasksRoot}
}

// Dir returns the absolute .artifacts directory path.
func (s *Store) Dir() string {
	return filepath.Join(s.root, ArtifactsDirname)
}

// Sha256Hex returns the lowercase hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Write implements the content-addressed write protocol: compute the
// digest, and either return the existing URI unchanged (dedup) or write
// atomically and return the new one.
func (s *Store) Write(content []byte, ext string) (uri string, size int, digest string, err error) {
	digest = Sha256Hex(content)
	extension := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if extension == "" {
		extension = "bin"
	}
	dir := s.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, "", fmt.Errorf("create artifacts dir: %w", err)
	}
	filename := fmt.Sprintf("%s.%s", digest, extension)
	target := filepath.Join(dir, filename)
	if _, err := atomicfile.WriteIfAbsent(target, content, 0o644); err != nil {
		return "", 0, "", fmt.Errorf("write artifact: %w", err)
	}
	return ArtifactsDirname + "/" + filename, len(content), digest, nil
}

// TruncateUTF8 truncates s to at most maxBytes bytes without splitting a
// multi-byte rune, matching the "UTF-8 truncated at 256 KiB" rule.
func TruncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	b := []byte(s)[:maxBytes]
	for len(b) > 0 && !utf8.RuneStart(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	// Drop a final rune that was truncated mid-sequence.
	if len(b) > 0 {
		if r, size := utf8.DecodeLastRune(b); r == utf8.RuneError && size <= 1 {
			b = b[:len(b)-1]
		}
	}
	return string(b)
}

// CanonicalJSON marshals payload with sorted keys, no extra whitespace and
// no HTML escaping, the Python json.dumps(sort_keys=True,
// separators=(",",":")) form used to compute digests. Non-ASCII text is
// written as raw UTF-8, not as \u escapes.
func CanonicalJSON(payload any) string {
	b, err := marshalCanonical(payload)
	if err != nil {
		return ""
	}
	return string(b)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b []byte
		b = append(b, '{')
		for i, k := range keys {
			if i > 0 {
				b = append(b, ',')
			}
			kb, _ := marshalScalar(k)
			b = append(b, kb...)
			b = append(b, ':')
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			b = append(b, vb...)
		}
		b = append(b, '}')
		return b, nil
	case []any:
		var b []byte
		b = append(b, '[')
		for i, item := range val {
			if i > 0 {
				b = append(b, ',')
			}
			ib, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			b = append(b, ib...)
		}
		b = append(b, ']')
		return b, nil
	default:
		return marshalScalar(val)
	}
}

// marshalScalar encodes v like json.Marshal but leaves <, > and & as-is.
func marshalScalar(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DigestForCheck computes the SHA-256 digest over a VerificationCheck's
// semantic fields, matching the original's canonical-JSON digest.
func DigestForCheck(kind, spec, outcome, preview string, details map[string]any) string {
	if details == nil {
		details = map[string]any{}
	}
	payload := map[string]any{
		"kind": kind, "spec": spec, "outcome": outcome, "preview": preview, "details": details,
	}
	return Sha256Hex([]byte(CanonicalJSON(payload)))
}

// DigestForAttachment computes the SHA-256 digest over an Attachment's
// semantic fields.
func DigestForAttachment(kind, path, uri, externalURI string, size int, meta map[string]any) string {
	if meta == nil {
		meta = map[string]any{}
	}
	payload := map[string]any{
		"kind": kind, "path": path, "uri": uri, "external_uri": externalURI, "size": size, "meta": meta,
	}
	return Sha256Hex([]byte(CanonicalJSON(payload)))
}
