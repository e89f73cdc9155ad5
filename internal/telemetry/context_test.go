package telemetry_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/petasbytes/toolchat/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestTurnIDFromContext(t *testing.T) {
	type otherKey struct{}
	tests := []struct {
		name   string
		ctx    context.Context
		want   string
		wantOK bool
	}{
		{"round trip", telemetry.WithTurnID(context.Background(), "turn-123"), "turn-123", true},
		{"missing", context.Background(), "", false},
		{"nil", nil, "", false},
		{"empty id is absent", telemetry.WithTurnID(context.Background(), ""), "", false},
		{"nil parent", telemetry.WithTurnID(nil, "t1"), "t1", true},
		{"last write wins", telemetry.WithTurnID(telemetry.WithTurnID(context.Background(), "t1"), "t2"), "t2", true},
		{"alongside other values", telemetry.WithTurnID(context.WithValue(context.Background(), otherKey{}, 123), "t1"), "t1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := telemetry.TurnIDFromContext(tt.ctx)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestWithTurnID_KeepsParent(t *testing.T) {
	type otherKey struct{}
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), otherKey{}, 123))
	child := telemetry.WithTurnID(parent, "t1")
	assert.Equal(t, 123, child.Value(otherKey{}))

	cancel()
	select {
	case <-child.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("child context did not observe parent cancellation")
	}
}

func TestEnsureTurnID(t *testing.T) {
	ctx, id := telemetry.EnsureTurnID(context.Background())
	assert.True(t, strings.HasPrefix(id, "turn-"), "generated id %q", id)
	got, _ := telemetry.TurnIDFromContext(ctx)
	assert.Equal(t, id, got)

	ctx2, id2 := telemetry.EnsureTurnID(telemetry.WithTurnID(context.Background(), "turn-fixed"))
	assert.Equal(t, "turn-fixed", id2)
	got2, _ := telemetry.TurnIDFromContext(ctx2)
	assert.Equal(t, "turn-fixed", got2)

	assert.NotEqual(t, telemetry.NewTurnID(), telemetry.NewTurnID())
}
