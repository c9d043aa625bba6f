// Package sanitize turns raw oracle output into a Candidate. It repairs the
// two malformations oracles produce most often (a fenced code wrapper and
// literal control characters inside string values) and then holds the
// result to a strict three-key JSON contract.
package sanitize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"querygenie/internal/models"
)

const fence = "```"

// contract requires question, sql and visualization as strings. Other keys
// are tolerated and dropped.
const contract = `{
	"type": "object",
	"required": ["question", "sql", "visualization"],
	"properties": {
		"question": {"type": "string"},
		"sql": {"type": "string"},
		"visualization": {"type": "string"}
	}
}`

var candidateSchema = mustSchema(contract)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("sanitize: invalid candidate schema: %v", err))
	}
	return schema
}

// UnparsableError reports oracle output that could not be brought to a
// valid Candidate. Raw is the text as received, Repaired the text after
// fence stripping and control-character escaping.
type UnparsableError struct {
	Raw      string
	Repaired string
	Reason   string
}

func (e *UnparsableError) Error() string {
	return "unparsable oracle response: " + e.Reason
}

// Sanitize repairs and parses raw. It never panics; every failure is an
// *UnparsableError.
func Sanitize(raw string) (c models.Candidate, err error) {
	repaired := EscapeControlChars(StripFence(raw))

	defer func() {
		if r := recover(); r != nil {
			c = models.Candidate{}
			err = &UnparsableError{Raw: raw, Repaired: repaired, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	fail := func(reason string) (models.Candidate, error) {
		return models.Candidate{}, &UnparsableError{Raw: raw, Repaired: repaired, Reason: reason}
	}

	var doc any
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return fail(fmt.Sprintf("invalid json: %v", err))
	}

	result, err := candidateSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fail(fmt.Sprintf("schema validation failed: %v", err))
	}
	if !result.Valid() {
		problems := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			problems[i] = e.String()
		}
		return fail("contract violation: " + strings.Join(problems, "; "))
	}

	// Read the fields from the document that was validated. A second decode
	// into the struct would match keys case-insensitively and let "SQL"
	// override "sql".
	fields, ok := doc.(map[string]any)
	if !ok {
		return fail("contract violation: not an object")
	}
	parsed := models.Candidate{
		Question:      stringField(fields, "question"),
		SQL:           stringField(fields, "sql"),
		Visualization: stringField(fields, "visualization"),
	}

	c = Normalize(parsed)
	if c.Question == "" {
		return fail("empty question")
	}
	if c.SQL == "" {
		return fail("empty sql")
	}
	return c, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// Normalize trims question and visualization and collapses whitespace runs
// in sql to single spaces.
func Normalize(c models.Candidate) models.Candidate {
	return models.Candidate{
		Question:      strings.TrimSpace(c.Question),
		SQL:           CollapseWhitespace(c.SQL),
		Visualization: strings.TrimSpace(c.Visualization),
	}
}

// CollapseWhitespace replaces every whitespace run with one space and trims
// the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripFence removes a surrounding ``` block, optionally tagged json.
// Text that does not start with a fence is returned unchanged.
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, fence) {
		return text
	}

	body := trimmed[len(fence):]
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}

	// Whatever else sits on the opening line is a tag unless the payload
	// starts right there.
	line, rest, found := strings.Cut(body, "\n")
	if opener := strings.TrimSpace(line); opener != "" && !strings.HasPrefix(opener, "{") && !strings.HasPrefix(opener, "[") {
		if found {
			body = rest
		} else {
			body = ""
		}
	}

	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, fence)
	return strings.TrimSpace(body)
}

// EscapeControlChars escapes bytes below 0x20 that appear inside
// double-quoted spans. Backslash escapes are honoured when tracking quotes.
// Bytes outside strings are left alone.
func EscapeControlChars(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if !inString {
			if ch == '"' {
				inString = true
			}
			b.WriteByte(ch)
			continue
		}

		switch {
		case escaped:
			escaped = false
			b.WriteByte(ch)
		case ch == '\\':
			escaped = true
			b.WriteByte(ch)
		case ch == '"':
			inString = false
			b.WriteByte(ch)
		case ch == '\n':
			b.WriteString(`\n`)
		case ch == '\r':
			b.WriteString(`\r`)
		case ch == '\t':
			b.WriteString(`\t`)
		case ch < 0x20:
			fmt.Fprintf(&b, `\u%04x`, ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
