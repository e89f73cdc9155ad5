package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NoMemories is the context text used when the store is empty.
const NoMemories = "You don't have any stored memories yet."

// FormatForContext renders the n most recent memories for the system prompt.
// n <= 0 renders nothing.
func FormatForContext(ctx context.Context, s Store, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	list, err := s.List(ctx, "")
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return NoMemories, nil
	}
	if len(list) > n {
		list = list[:n]
	}

	var b strings.Builder
	b.WriteString("Your memory contains the following information:\n")
	for _, sum := range list {
		rec, err := s.Retrieve(ctx, sum.Key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n- %s: %s\n", rec.Key, rec.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
