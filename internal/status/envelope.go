package status

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Docs links a status to its documentation page.
type Docs struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Body is the per-status object nested under the status key.
type Body struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Docs    Docs   `json:"docs"`
}

// Extra holds response fields placed beside the status key.
type Extra map[string]any

// Renderer builds envelopes whose docs links point at a fixed docs base URL,
// e.g. "https://docs.example.com".
type Renderer struct {
	DocsBase string
}

// Body returns the nested status object for k.
func (r Renderer) Body(k Kind) Body {
	return Body{
		Code:    k.Code(),
		Type:    k.String(),
		Message: k.Message(),
		Kind:    k.KindLabel(),
		Docs: Docs{
			URL:     r.DocsBase + k.DocsPath(),
			Message: DocsMessage,
		},
	}
}

// Envelope assembles the full response object. Extra keys never replace the
// status key.
func (r Renderer) Envelope(k Kind, extra Extra) map[string]any {
	out := make(map[string]any, len(extra)+1)
	for key, v := range extra {
		out[key] = v
	}
	out[k.String()] = r.Body(k)
	return out
}

// Write sends the envelope for k with its HTTP status.
func (r Renderer) Write(w http.ResponseWriter, k Kind, extra Extra) {
	writeJSON(w, k.HTTPStatus(), r.Envelope(k, extra))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Decode parses an envelope and returns its status kind along with the raw
// extra fields. It is used by API clients.
func Decode(data []byte) (Kind, Body, map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, Body{}, nil, fmt.Errorf("decode envelope: %w", err)
	}
	for name, payload := range raw {
		k, ok := Lookup(name)
		if !ok {
			continue
		}
		var body Body
		if err := json.Unmarshal(payload, &body); err != nil {
			return 0, Body{}, nil, fmt.Errorf("decode %s: %w", name, err)
		}
		delete(raw, name)
		return k, body, raw, nil
	}
	return 0, Body{}, nil, fmt.Errorf("decode envelope: no known status key")
}
