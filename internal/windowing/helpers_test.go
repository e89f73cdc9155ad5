package windowing_test

import (
	"github.com/petasbytes/toolchat/internal/llm"
	"github.com/petasbytes/toolchat/internal/windowing"
)

func U(text string) llm.Message { return llm.Message{Role: llm.RoleUser, Content: text} }
func A(text string) llm.Message { return llm.Message{Role: llm.RoleAssistant, Content: text} }
func S(text string) llm.Message { return llm.Message{Role: llm.RoleSystem, Content: text} }

// groupsEqual is a small utility used by grouping tests.
func groupsEqual(got, want []windowing.Group) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
