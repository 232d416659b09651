// Package format declares structured output: a named JSON schema plus one of
// three extraction strategies for pulling a typed value out of a model reply.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// Mode selects how the schema is communicated to the backend and where the
// structured payload is located in the reply. Each mode uses exactly one
// payload channel: free text or the reserved synthetic tool call, never both.
type Mode string

const (
	// ModeStrict has the backend enforce the schema; the reply text is the
	// JSON document.
	ModeStrict Mode = "strict"
	// ModeJSON communicates the schema via an injected system instruction;
	// the reply text should be JSON but is not enforced.
	ModeJSON Mode = "json"
	// ModeTool exposes the schema as a synthetic tool definition; the
	// structured payload is that tool call's arguments.
	ModeTool Mode = "tool"
)

// OutputToolName is the reserved name of the synthetic tool used by ModeTool
// to capture structured output.
const OutputToolName = "structured_output"

// ParseError reports that a reply's payload could not be decoded against the
// spec. It is terminal once the owning response is finished and the engine's
// single corrective turn has been spent.
type ParseError struct {
	Spec   string
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing structured output %q: %s", e.Spec, e.Reason)
}

// A Spec describes a structured output: the schema of the expected value and
// the strategy used to extract it. Specs are immutable and safe to share.
type Spec struct {
	Name        string
	Description string
	Mode        Mode
	Strict      bool
	Schema      *jsonschema.Schema

	typ reflect.Type
}

// New builds a Spec whose schema is reflected from the prototype struct.
func New(name string, prototype any, mode Mode) *Spec {
	return &Spec{
		Name:   name,
		Mode:   mode,
		Strict: mode == ModeStrict,
		Schema: (&jsonschema.Reflector{DoNotReference: true}).Reflect(prototype),
		typ:    reflect.TypeOf(prototype),
	}
}

// Instructions returns the system instruction injected for ModeJSON. Other
// modes communicate the schema out of band and return "".
func (s *Spec) Instructions() string {
	if s.Mode != ModeJSON {
		return ""
	}
	schemaJSON, err := json.MarshalIndent(s.Schema, "", "  ")
	if err != nil {
		schemaJSON = []byte("{}")
	}
	return fmt.Sprintf(
		"Respond with a single JSON object matching this JSON Schema, with no surrounding prose:\n\n%s",
		schemaJSON,
	)
}

// Parse decodes a raw payload into a new instance of the spec's prototype
// type. For ModeJSON the document is first located within the text, since the
// backend may wrap it in prose or code fences.
func (s *Spec) Parse(raw string) (any, error) {
	doc := raw
	if s.Mode == ModeJSON {
		doc = ExtractJSON(raw)
	}
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil, &ParseError{Spec: s.Name, Reason: "empty payload", Raw: raw}
	}

	target := s.newValue()
	decoder := json.NewDecoder(bytes.NewReader([]byte(doc)))
	if s.Strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(target); err != nil {
		return nil, &ParseError{Spec: s.Name, Reason: err.Error(), Raw: raw}
	}
	return target, nil
}

// ParsePartial attempts to decode a payload that may still be streaming. A
// syntactically incomplete document is reported as not-yet-parseable via
// ok=false, never as an error.
func (s *Spec) ParsePartial(raw string) (value any, ok bool) {
	doc := raw
	if s.Mode == ModeJSON {
		doc = ExtractJSONPrefix(raw)
	}
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil, false
	}

	completed, completedOK := CompleteJSON(doc)
	if !completedOK {
		return nil, false
	}
	target := s.newValue()
	if err := json.Unmarshal([]byte(completed), target); err != nil {
		return nil, false
	}
	return target, true
}

func (s *Spec) newValue() any {
	typ := s.typ
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return reflect.New(typ).Interface()
}

// ExtractJSON locates a complete JSON document within free text: code fences
// are stripped, then the first balanced object or array is taken.
func ExtractJSON(text string) string {
	candidate := stripFences(text)
	if gjson.Valid(strings.TrimSpace(candidate)) {
		return strings.TrimSpace(candidate)
	}

	start := strings.IndexAny(candidate, "{[")
	if start < 0 {
		return strings.TrimSpace(candidate)
	}
	rest := candidate[start:]
	if end := balancedEnd(rest); end > 0 {
		return rest[:end]
	}
	return strings.TrimSpace(rest)
}

// ExtractJSONPrefix locates the start of a (possibly unterminated) JSON
// document within streaming text.
func ExtractJSONPrefix(text string) string {
	candidate := stripFences(text)
	start := strings.IndexAny(candidate, "{[")
	if start < 0 {
		return strings.TrimSpace(candidate)
	}
	return candidate[start:]
}

func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[idx+3:]
		// Drop an optional language tag on the fence line.
		if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(trimmed[:nl])
			if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{[") {
				trimmed = trimmed[nl+1:]
			}
		}
		if end := strings.Index(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}
	}
	return trimmed
}

// balancedEnd returns the index just past the first balanced JSON value
// starting at s[0], or -1 when the value never closes.
func balancedEnd(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
