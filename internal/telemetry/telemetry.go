// Package telemetry appends structured events to a local JSONL file.
// Events carry sizes, counts and outcomes, never raw conversation text.
package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Emit writes a single JSON line to <ArtifactsDir>/events.jsonl when observation is on.
// It augments fields with RFC3339Nano time and the event name.
// Failures are logged through the global zap logger and otherwise ignored.
func Emit(name string, fields map[string]any) {
	sw := LoadSwitches()
	if !sw.ObserveEnabled() {
		return
	}

	// Make a shallow copy so callers' maps aren't mutated.
	m := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		m[k] = v
	}
	m["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	m["event"] = name

	log := zap.L().Named("telemetry")
	b, err := json.Marshal(m)
	if err != nil {
		log.Warn("marshal event", zap.String("event", name), zap.Error(err))
		return
	}

	dir := sw.ArtifactsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("create artifacts dir", zap.String("dir", dir), zap.Error(err))
		return
	}

	path := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn("open events file", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		log.Warn("write event", zap.String("path", path), zap.Error(err))
	}
}
