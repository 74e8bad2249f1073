package control

// Mode selects who decides the panel orientation: the tracking logic or the operator.
type Mode string

const (
	ModeAutomatic Mode = "AUTOMATIC"
	ModeManual    Mode = "MANUAL"
)

// Orientation is a physical pointing direction in degrees.
// Range and wraparound are the caller's responsibility.
type Orientation struct {
	Azimuth     float64 `json:"azimuth"`
	Inclination float64 `json:"inclination"`
}

// Config is the shared control configuration of the tracker.
type Config struct {
	ControlMode       Mode        `json:"controlMode"`
	ManualOrientation Orientation `json:"manualOrientation"`
}

// DefaultConfig is the configuration a fresh server starts with.
func DefaultConfig() Config {
	return Config{
		ControlMode:       ModeAutomatic,
		ManualOrientation: Orientation{},
	}
}

// ConfigUpdate is a partial configuration change. Nil fields are left
// untouched by a merge; a present ManualOrientation replaces the stored
// one wholesale.
type ConfigUpdate struct {
	ControlMode       *Mode        `json:"controlMode"`
	ManualOrientation *Orientation `json:"manualOrientation"`
}

// State is one telemetry snapshot. The server never stores these; fields a
// producer did not supply stay absent on the wire.
type State struct {
	Timestamp             int64        `json:"timestamp"`
	MotorOrientation      *Orientation `json:"motorOrientation,omitempty"`
	PlatformOrientation   *Orientation `json:"platformOrientation,omitempty"`
	SolarPanelOrientation *Orientation `json:"solarPanelOrientation,omitempty"`
	SunOrientation        *Orientation `json:"sunOrientation,omitempty"`
	SolarPanelVoltage     *float64     `json:"solarPanelVoltage,omitempty"`
}
