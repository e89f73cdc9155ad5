package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/petasbytes/toolchat/internal/llm"
)

// Snapshot is the persisted view of a conversation. Token counts are not
// stored; they are recomputed on Restore with the restoring counter.
type Snapshot struct {
	SystemPrompt    string         `json:"system_prompt,omitempty"`
	Turns           []SnapshotTurn `json:"turns"`
	SummarizedCount int            `json:"summarized_count,omitempty"`
	Limits          *Limits        `json:"limits,omitempty"`
}

type SnapshotTurn struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
	Summary bool     `json:"summary,omitempty"`
}

// Snapshot captures the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := s.limits
	snap := Snapshot{
		SystemPrompt:    s.systemPrompt,
		Turns:           make([]SnapshotTurn, 0, len(s.turns)),
		SummarizedCount: s.summarizedCount,
		Limits:          &l,
	}
	for _, t := range s.turns {
		snap.Turns = append(snap.Turns, SnapshotTurn{Role: t.Role, Content: t.Content, Summary: t.Summary})
	}
	return snap
}

// Restore replaces turns and counters with snap. The system prompt is only
// replaced when snap carries one; limits only when they validate.
func (s *State) Restore(snap Snapshot) error {
	if snap.Limits != nil {
		if err := snap.Limits.Validate(); err != nil {
			return err
		}
	}
	for i, t := range snap.Turns {
		switch t.Role {
		case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
		default:
			return fmt.Errorf("snapshot turn %d: unknown role %q", i, t.Role)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Limits != nil {
		s.limits = *snap.Limits
	}
	if snap.SystemPrompt != "" {
		s.systemPrompt = snap.SystemPrompt
		s.systemTokens = s.cost(snap.SystemPrompt)
	}
	s.turns = make([]Turn, 0, len(snap.Turns))
	s.total = s.systemTokens
	for _, t := range snap.Turns {
		turn := Turn{Role: t.Role, Content: t.Content, Summary: t.Summary, TokenCount: s.cost(t.Content)}
		s.turns = append(s.turns, turn)
		s.total += turn.TokenCount
	}
	s.summarizedCount = snap.SummarizedCount
	s.warningIssued = s.usageLocked() > s.limits.WarningThreshold
	return nil
}

// LoadSnapshot reads a snapshot file. A missing file returns nil, nil.
func LoadSnapshot(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// SaveSnapshot writes snap as indented JSON, replacing the file atomically.
func SaveSnapshot(path string, snap Snapshot) error {
	b, err := json.MarshalIndent(snap, "", " ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
