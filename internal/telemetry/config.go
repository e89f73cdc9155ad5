package telemetry

import (
	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

// Switches are the telemetry toggles read from the environment.
// Observe and PersistPayloads follow Calibration unless set to "0" or "1".
type Switches struct {
	Calibration     string `env:"AGT_CALIBRATION_MODE"`
	Observe         string `env:"AGT_OBSERVE_JSON"`
	PersistPayloads string `env:"AGT_PERSIST_API_PAYLOADS"`
	ArtifactsDir    string `env:"AGT_ARTIFACTS_DIR" envDefault:".agent"`
}

// LoadSwitches reads the current environment. It is evaluated on every call
// so a long-running process and tests see changes immediately.
func LoadSwitches() Switches {
	var s Switches
	if err := env.Parse(&s); err != nil {
		zap.L().Named("telemetry").Warn("parse telemetry env", zap.Error(err))
		return Switches{ArtifactsDir: ".agent"}
	}
	return s
}

func (s Switches) CalibrationEnabled() bool { return s.Calibration == "1" }

func (s Switches) ObserveEnabled() bool {
	return toggle(s.Observe, s.CalibrationEnabled())
}

func (s Switches) PersistPayloadsEnabled() bool {
	return toggle(s.PersistPayloads, s.CalibrationEnabled())
}

func toggle(v string, fallback bool) bool {
	switch v {
	case "1":
		return true
	case "0":
		return false
	}
	return fallback
}

// CalibrationModeEnabled reports whether AGT_CALIBRATION_MODE=1.
func CalibrationModeEnabled() bool { return LoadSwitches().CalibrationEnabled() }

// ObserveEnabled reports whether events.jsonl emission is on.
func ObserveEnabled() bool { return LoadSwitches().ObserveEnabled() }

// PersistPayloadsEnabled reports whether request and response payloads are written to disk.
func PersistPayloadsEnabled() bool { return LoadSwitches().PersistPayloadsEnabled() }

// ArtifactsDir is where events.jsonl and payloads live: AGT_ARTIFACTS_DIR, else .agent.
func ArtifactsDir() string { return LoadSwitches().ArtifactsDir }
