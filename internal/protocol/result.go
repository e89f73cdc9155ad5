package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Outcome is what an executed call produced.
type Outcome struct {
	Success bool
	Payload any
	Error   string
}

// SerializeResult renders the result block for call. Payloads are JSON-encoded;
// an unencodable payload is reported as a failure instead.
func SerializeResult(call Call, out Outcome) string {
	var b strings.Builder
	b.WriteString(ResultOpen)
	fmt.Fprintf(&b, "\nname: %s\nsuccess: %t\n", call.Name, out.Success)
	if out.Success {
		payload, err := json.Marshal(out.Payload)
		if err != nil {
			b.Reset()
			return SerializeResult(call, Outcome{Error: "payload not encodable: " + err.Error()})
		}
		fmt.Fprintf(&b, "payload: %s\n", payload)
	} else {
		fmt.Fprintf(&b, "error: %s\n", singleLine(out.Error))
	}
	b.WriteString(ResultClose)
	return b.String()
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Splice inserts each result block immediately after its call block. calls
// must come from Parse or Extract on text; blocks[i] belongs to calls[i].
func Splice(text string, calls []Call, blocks []string) string {
	if len(calls) != len(blocks) {
		panic(fmt.Sprintf("protocol: %d calls but %d result blocks", len(calls), len(blocks)))
	}
	type ins struct {
		at    int
		order int
		block string
	}
	list := make([]ins, 0, len(calls))
	for i, c := range calls {
		if c.End < 0 || c.End > len(text) {
			continue
		}
		list = append(list, ins{at: c.End, order: i, block: blocks[i]})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].at < list[j].at })

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, in := range list {
		b.WriteString(text[prev:in.at])
		b.WriteString("\n")
		b.WriteString(in.block)
		prev = in.at
	}
	b.WriteString(text[prev:])
	return b.String()
}
