package telemetry

import (
	"context"

	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/tokens"
)

// EmitLocalFeatures records shape features of the user's message next to the
// heuristic token estimate, for calibrating the heuristic offline.
func EmitLocalFeatures(ctx context.Context, user string) {
	if !(CalibrationModeEnabled() && ObserveEnabled()) {
		return
	}
	turnID, _ := TurnIDFromContext(ctx)
	f := metrics.CountFeatures(user)
	Emit("local_features", map[string]any{
		"turn_id":          turnID,
		"features_version": "1",
		"user": map[string]any{
			"bytes": f.Bytes,
			"runes": f.Runes,
			"words": f.Words,
			"lines": f.Lines,
		},
		"heuristic_tokens": tokens.Heuristic(user),
	})
}
