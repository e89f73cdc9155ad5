// Package protocol parses tool-call blocks embedded in model text and renders
// the result blocks spliced back after them.
//
// Wire format (the model is instructed to emit exactly this shape):
//
//	<mcp:tool>
//	name: memory
//	parameters: {"operation": "search", "query": "deploy"}
//	</mcp:tool>
//
// Results follow their call:
//
//	<mcp:result>
//	name: memory
//	success: true
//	payload: [...]
//	</mcp:result>
package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	CallOpen    = "<mcp:tool>"
	CallClose   = "</mcp:tool>"
	ResultOpen  = "<mcp:result>"
	ResultClose = "</mcp:result>"
)

// Kind tags how a block was parsed.
type Kind int

const (
	// Parsed: the parameters were a valid object literal (or absent).
	Parsed Kind = iota
	// PartiallyParsed: the parameters fell back to string-valued key: value lines.
	PartiallyParsed
	// Skipped: the block matched neither form and produced no call.
	Skipped
)

func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case PartiallyParsed:
		return "partially_parsed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Call is one tool invocation requested by the model. Start and End are the
// byte offsets of the whole block in the source text.
type Call struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Start      int            `json:"-"`
	End        int            `json:"-"`
}

// Block is the parse outcome of one delimited block. Call is set unless Kind is Skipped.
type Block struct {
	Kind   Kind
	Call   Call
	Reason string
}

var (
	blockRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(CallOpen) + `(.*?)` + regexp.QuoteMeta(CallClose))
	nameRe  = regexp.MustCompile(`(?m)^[ \t]*name[ \t]*:[ \t]*(.*?)(?:[ \t]+(parameters[ \t]*:)|[ \t]*\r?$)`)
	paramRe = regexp.MustCompile(`(?m)^[ \t]*parameters[ \t]*:`)
	lineRe  = regexp.MustCompile(`^\s*"?([A-Za-z_][\w.-]*)"?\s*:\s*(.*?)\s*$`)
)

// Parse returns every delimited block in text, in document order, with its parse outcome.
// It never fails: malformed blocks come back as Skipped.
func Parse(text string) []Block {
	locs := blockRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]Block, 0, len(locs))
	for _, loc := range locs {
		body := text[loc[2]:loc[3]]
		b := parseBody(body)
		b.Call.Start, b.Call.End = loc[0], loc[1]
		out = append(out, b)
	}
	return out
}

// Extract returns the calls of every block that was not skipped, in document order.
func Extract(text string) []Call {
	var calls []Call
	for _, b := range Parse(text) {
		if b.Kind != Skipped {
			calls = append(calls, b.Call)
		}
	}
	return calls
}

func parseBody(body string) Block {
	nm := nameRe.FindStringSubmatchIndex(body)
	if nm == nil || strings.TrimSpace(body[nm[2]:nm[3]]) == "" {
		return Block{Kind: Skipped, Reason: "missing name line"}
	}
	name := strings.TrimSpace(body[nm[2]:nm[3]])

	var raw string
	if nm[4] >= 0 {
		// name: x parameters: {...} on one line.
		raw = body[nm[1]:]
	} else {
		pm := paramRe.FindStringIndex(body)
		if pm == nil {
			// A bare name is a call without parameters.
			return Block{Kind: Parsed, Call: Call{Name: name, Parameters: map[string]any{}}}
		}
		raw = body[pm[1]:]
		if nm[0] >= pm[1] {
			// The name line came after the parameters; cut it out.
			raw = body[pm[1]:nm[0]] + body[nm[1]:]
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Block{Kind: Parsed, Call: Call{Name: name, Parameters: map[string]any{}}}
	}

	if params, ok := parseObject(raw); ok {
		return Block{Kind: Parsed, Call: Call{Name: name, Parameters: params}}
	}
	if params := parseLines(raw); len(params) > 0 {
		return Block{Kind: PartiallyParsed, Call: Call{Name: name, Parameters: params}, Reason: "parameters are not a valid object literal"}
	}
	return Block{Kind: Skipped, Reason: "parameters match neither an object literal nor key: value lines"}
}

func parseObject(raw string) (map[string]any, bool) {
	if !strings.HasPrefix(raw, "{") {
		return nil, false
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil || params == nil {
		return nil, false
	}
	return params, true
}

// parseLines reads "key: value" lines. Values stay strings; only a trailing
// comma and one pair of matching quotes are stripped.
func parseLines(raw string) map[string]any {
	params := map[string]any{}
	for _, line := range strings.Split(raw, "\n") {
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		params[m[1]] = cleanValue(m[2])
	}
	return params
}

func cleanValue(v string) string {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), ","))
	if len(v) >= 2 {
		if q := v[0]; (q == '"' || q == '\'') && v[len(v)-1] == q {
			v = v[1 : len(v)-1]
		}
	}
	return v
}

// FormatCall renders c in the wire format. Parameters are encoded as an object literal.
func FormatCall(c Call) string {
	params := c.Parameters
	if params == nil {
		params = map[string]any{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		b = []byte("{}")
	}
	return fmt.Sprintf("%s\nname: %s\nparameters: %s\n%s", CallOpen, c.Name, b, CallClose)
}
