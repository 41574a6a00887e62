package extraction

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

// RawFields is the decoded, not yet validated, reply object.
type RawFields map[string]any

var (
	openingFence = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	closingFence = regexp.MustCompile("\r?\n?```$")
)

// stripFences removes one leading ``` (optionally language tagged) and one
// trailing ``` marker.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = openingFence.ReplaceAllString(text, "")
	text = closingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ParseReply decodes a model reply into RawFields. Apart from fence
// stripping no repair is attempted; anything that is not exactly one JSON
// object yields a *ParseError carrying the raw reply.
func ParseReply(text string) (RawFields, error) {
	cleaned := stripFences(text)
	if cleaned == "" {
		return nil, &ParseError{Raw: text, Err: errors.New("empty reply")}
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()

	var fields RawFields
	if err := dec.Decode(&fields); err != nil {
		return nil, &ParseError{Raw: text, Err: err}
	}
	if fields == nil {
		return nil, &ParseError{Raw: text, Err: errors.New("reply is not a JSON object")}
	}

	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err != io.EOF {
		return nil, &ParseError{Raw: text, Err: errors.New("unexpected data after JSON object")}
	}

	return fields, nil
}
