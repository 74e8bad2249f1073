package control

import (
	"math"
	"time"
)

// SimulateInterval is the tick of the per-connection telemetry simulator.
const SimulateInterval = 100 * time.Millisecond

// Simulate synthesizes one telemetry snapshot for wall-clock time t under
// the given configuration. In manual mode the panel tracks the operator's
// orientation verbatim; in automatic mode it sweeps a full azimuth rotation
// every 12 seconds with the inclination following a sine arc.
func Simulate(t time.Time, cfg Config) State {
	ms := t.UnixMilli()
	secs := float64(ms) / 1000.0

	voltage := 5*math.Cos(2*math.Pi*math.Mod(3*secs, 360)/360) + 5

	var panel Orientation
	if cfg.ControlMode == ModeManual {
		panel = cfg.ManualOrientation
	} else {
		azimuth := math.Mod(30*secs, 360)
		panel = Orientation{
			Azimuth:     azimuth,
			Inclination: 90 * (0.5*math.Sin(2*math.Pi*azimuth/360) + 0.5),
		}
	}

	return State{
		Timestamp:             ms,
		SolarPanelOrientation: &panel,
		SolarPanelVoltage:     &voltage,
	}
}
