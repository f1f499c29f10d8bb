// Package edge defines activity-pair edge keys and the per-dataset schema
// that decides whether keys are qualified by lifecycle.
package edge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Endpoint is one side of an edge: an activity, optionally qualified by a
// lifecycle transition (e.g. "complete").
type Endpoint struct {
	Activity  string `yaml:"activity" json:"activity"`
	Lifecycle string `yaml:"lifecycle,omitempty" json:"lifecycle,omitempty"`
}

// Key identifies a directly-follows activity pair.
type Key struct {
	Source Endpoint `yaml:"source" json:"source"`
	Sink   Endpoint `yaml:"sink" json:"sink"`
}

// String renders the key as "source->sink" using the endpoint labels of
// the lifecycle schema when any lifecycle is set.
func (k Key) String() string {
	return endpointText(k.Source) + "->" + endpointText(k.Sink)
}

func endpointText(e Endpoint) string {
	if e.Lifecycle == "" {
		return e.Activity
	}
	return e.Activity + "-" + e.Lifecycle
}

// canonical joins the four components with NUL, which never occurs in
// activity or lifecycle names.
func (k Key) canonical() string {
	return strings.Join([]string{
		k.Source.Activity, k.Source.Lifecycle,
		k.Sink.Activity, k.Sink.Lifecycle,
	}, "\x00")
}

const maxSlugBody = 120

// Slug returns a filesystem-safe name for k. Characters outside
// [A-Za-z0-9._-] become '_', and an 8-hex-digit digest of the exact key is
// appended so keys that sanitize to the same text stay distinct.
func (k Key) Slug() string {
	body := sanitize(endpointText(k.Source)) + "_" + sanitize(endpointText(k.Sink))
	if len(body) > maxSlugBody {
		body = body[:maxSlugBody]
	}

	sum := sha256.Sum256([]byte(k.canonical()))
	return body + "_" + hex.EncodeToString(sum[:4])
}

func sanitize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	// A leading dot would hide the file on Unix.
	if strings.HasPrefix(out, ".") {
		out = "_" + out[1:]
	}
	return out
}
