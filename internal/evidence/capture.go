package evidence

import (
	"fmt"
	"time"

	"github.com/apply-task/taskengine/internal/model"
)

// ArtifactKind enumerates the payload shapes evidence_capture accepts.
type ArtifactKind string

const (
	ArtifactCmdOutput ArtifactKind = "cmd_output"
	ArtifactDiff      ArtifactKind = "diff"
	ArtifactURL       ArtifactKind = "url"
)

// CmdOutputPayload is the cmd_output artifact shape.
type CmdOutputPayload struct {
	Command  string         `mapstructure:"command"`
	Stdout   string         `mapstructure:"stdout"`
	Stderr   string         `mapstructure:"stderr"`
	ExitCode int            `mapstructure:"exit_code"`
	Meta     map[string]any `mapstructure:"meta"`
}

// CaptureCmdOutput redacts, canonicalizes, truncates, and stores a
// cmd_output artifact, returning the resulting Attachment.
func (s *Store) CaptureCmdOutput(p CmdOutputPayload) (model.Attachment, error) {
	redacted := Redact(map[string]any{
		"command":   p.Command,
		"stdout":    p.Stdout,
		"stderr":    p.Stderr,
		"exit_code": p.ExitCode,
		"meta":      p.Meta,
	}).(map[string]any)
	content := TruncateUTF8(CanonicalJSON(redacted), MaxArtifactBytes)
	uri, size, digest, err := s.Write([]byte(content), "json")
	if err != nil {
		return model.Attachment{}, fmt.Errorf("capture cmd_output: %w", err)
	}
	return model.Attachment{
		Kind:   string(ArtifactCmdOutput),
		URI:    uri,
		Size:   size,
		Digest: digest,
	}, nil
}

// CaptureDiff redacts, truncates, and stores a diff artifact.
func (s *Store) CaptureDiff(text string) (model.Attachment, error) {
	redactedText := RedactText(text)
	content := TruncateUTF8(redactedText, MaxArtifactBytes)
	uri, size, digest, err := s.Write([]byte(content), "patch")
	if err != nil {
		return model.Attachment{}, fmt.Errorf("capture diff: %w", err)
	}
	return model.Attachment{
		Kind:   string(ArtifactDiff),
		URI:    uri,
		Size:   size,
		Digest: digest,
	}, nil
}

// CaptureURL redacts an external URI without storing any blob.
func CaptureURL(uri string) model.Attachment {
	redacted := RedactText(uri)
	digest := DigestForAttachment(string(ArtifactURL), "", "", redacted, 0, nil)
	return model.Attachment{
		Kind:        string(ArtifactURL),
		ExternalURI: redacted,
		Digest:      digest,
	}
}

// BuildCheck constructs a VerificationCheck from raw (possibly secret-
// bearing) input, redacting preview/details and computing its digest.
func BuildCheck(kind, spec, outcome, preview string, details map[string]any) model.VerificationCheck {
	redactedPreview := RedactText(preview)
	var redactedDetails map[string]any
	if details != nil {
		redactedDetails, _ = Redact(details).(map[string]any)
	}
	digest := DigestForCheck(kind, spec, outcome, redactedPreview, redactedDetails)
	return model.VerificationCheck{
		Kind:       kind,
		Spec:       spec,
		Outcome:    outcome,
		ObservedAt: time.Now().UTC(),
		Preview:    redactedPreview,
		Details:    CanonicalJSON(redactedDetails),
		Digest:     digest,
	}
}

// DedupAttachments appends src items onto dst, skipping any whose digest
// already appears in dst.
func DedupAttachments(dst []model.Attachment, src []model.Attachment) []model.Attachment {
	seen := map[string]bool{}
	for _, a := range dst {
		seen[a.Digest] = true
	}
	for _, a := range src {
		if !seen[a.Digest] {
			dst = append(dst, a)
			seen[a.Digest] = true
		}
	}
	return dst
}

// DedupChecks appends src items onto dst, skipping any whose digest
// already appears in dst.
func DedupChecks(dst []model.VerificationCheck, src []model.VerificationCheck) []model.VerificationCheck {
	seen := map[string]bool{}
	for _, c := range dst {
		seen[c.Digest] = true
	}
	for _, c := range src {
		if !seen[c.Digest] {
			dst = append(dst, c)
			seen[c.Digest] = true
		}
	}
	return dst
}
