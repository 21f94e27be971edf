// Package media models a Jupyter rich-display bundle: an ordered list of
// (mime type, payload) variants, as carried by execute_result,
// display_data, and inspect_reply (spec.md §4.J).
package media

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Variant is one representation of a display bundle in a single MIME
// type.
type Variant struct {
	MIMEType string
	Payload  interface{} // string for text/* mimetypes, decoded JSON otherwise
}

// Bundle is an ordered set of variants plus the metadata and transient
// maps that travel alongside them on the wire (spec.md §3).
type Bundle struct {
	Variants  []Variant
	Metadata  map[string]interface{}
	Transient map[string]interface{}
}

// wireForm is the on-the-wire shape: data/metadata/transient, each a
// mime-type-or-key -> value map (spec.md §3 wire encoding).
type wireForm struct {
	Data      map[string]json.RawMessage `json:"data"`
	Metadata  map[string]interface{}     `json:"metadata,omitempty"`
	Transient map[string]interface{}     `json:"transient,omitempty"`
}

// ParseWire decodes a display_data/execute_result-shaped data/metadata/
// transient triple into a Bundle. Variant order is not preserved by the
// wire's unordered JSON object (spec.md §9 open question, resolved: wire
// order is not guaranteed, so callers needing a stable order must rank
// via Richest).
func ParseWire(data map[string]json.RawMessage, metadata, transient map[string]interface{}) (*Bundle, error) {
	b := &Bundle{Metadata: metadata, Transient: transient}
	for mime, raw := range data {
		var payload interface{}
		if isTextMIME(mime) {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, errors.WithMessagef(err, "media.ParseWire: mime %q", mime)
			}
			payload = s
		} else {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, errors.WithMessagef(err, "media.ParseWire: mime %q", mime)
			}
		}
		b.Variants = append(b.Variants, Variant{MIMEType: mime, Payload: payload})
	}
	return b, nil
}

// SerializeWire encodes the bundle back into the data/metadata/transient
// triple used by display_data and execute_result content. An empty
// Transient map is returned as a nil transient, so it is omitted rather
// than emitted as "{}" (spec.md §9(c)).
func (b *Bundle) SerializeWire() (data map[string]json.RawMessage, metadata, transient map[string]interface{}, err error) {
	data = make(map[string]json.RawMessage, len(b.Variants))
	for _, v := range b.Variants {
		raw, err := json.Marshal(v.Payload)
		if err != nil {
			return nil, nil, nil, errors.WithMessagef(err, "media.SerializeWire: mime %q", v.MIMEType)
		}
		data[v.MIMEType] = raw
	}
	metadata = b.Metadata
	if len(b.Transient) > 0 {
		transient = b.Transient
	}
	return data, metadata, transient, nil
}

// notebookCell mirrors the .ipynb output-cell encoding, where a text/*
// payload is stored as a list of lines rather than one long string
// (spec.md §4.J notebook serialization form).
type notebookCell struct {
	Data      map[string]interface{} `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Transient map[string]interface{} `json:"transient,omitempty"`
}

// ParseNotebook decodes a bundle from its .ipynb on-disk form, where
// text/* payloads are line-split arrays instead of single strings.
func ParseNotebook(raw json.RawMessage) (*Bundle, error) {
	var cell notebookCell
	if err := json.Unmarshal(raw, &cell); err != nil {
		return nil, errors.WithMessage(err, "media.ParseNotebook: decoding cell")
	}
	b := &Bundle{Metadata: cell.Metadata, Transient: cell.Transient}
	for mime, v := range cell.Data {
		payload := v
		if isTextMIME(mime) {
			if lines, ok := v.([]interface{}); ok {
				joined := ""
				for _, line := range lines {
					s, _ := line.(string)
					joined += s
				}
				payload = joined
			}
		}
		b.Variants = append(b.Variants, Variant{MIMEType: mime, Payload: payload})
	}
	return b, nil
}

// SerializeNotebook encodes the bundle into the .ipynb on-disk form,
// splitting text/* payloads into a list of lines.
func (b *Bundle) SerializeNotebook() (json.RawMessage, error) {
	cell := notebookCell{Data: make(map[string]interface{}, len(b.Variants)), Metadata: b.Metadata, Transient: b.Transient}
	for _, v := range b.Variants {
		if isTextMIME(v.MIMEType) {
			if s, ok := v.Payload.(string); ok {
				cell.Data[v.MIMEType] = splitLines(s)
				continue
			}
		}
		cell.Data[v.MIMEType] = v.Payload
	}
	return json.Marshal(cell)
}

func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func isTextMIME(mime string) bool {
	switch mime {
	case "text/plain", "text/html", "text/markdown", "text/latex", "application/javascript":
		return true
	default:
		return len(mime) >= 5 && mime[:5] == "text/"
	}
}

// Richest selects the variant with the highest rank(mimeType) among
// variants ranked above zero, the front-end's "pick the best
// representation you can render" policy (spec.md §4.J). A rank of zero
// means "not supported"; if every variant ranks zero (or the bundle is
// empty), Richest returns false rather than an arbitrary variant.
func (b *Bundle) Richest(rank func(mimeType string) int) (Variant, bool) {
	var best Variant
	bestRank := 0
	found := false
	for _, v := range b.Variants {
		if r := rank(v.MIMEType); r > 0 && r > bestRank {
			best, bestRank, found = v, r, true
		}
	}
	return best, found
}

// DefaultRank is a reasonable default ranking: richer visual/document
// formats beat plain text, matching the priority gonb itself applies
// when it picks an outgoing MIME type for display data.
func DefaultRank(mimeType string) int {
	switch mimeType {
	case "text/plain":
		return 0
	case "text/markdown":
		return 10
	case "text/html":
		return 20
	case "image/svg+xml":
		return 30
	case "image/png", "image/jpeg":
		return 40
	case "application/json":
		return 15
	default:
		return 5
	}
}
