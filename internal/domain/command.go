package domain

// Action is a device-control verb.
type Action string

const (
	// ActionOpen fully opens a valve.
	ActionOpen Action = "open"
	// ActionClose fully closes a valve.
	ActionClose Action = "close"
)

// Servo rotations the two actions map to, in degrees.
const (
	ValveOpenDegrees   = 0
	ValveClosedDegrees = 180
)

// Valid valve identifier range.
const (
	MinDevice = 1
	MaxDevice = 5
)

// Command is a device-control instruction parsed from free text. It exists
// only for the duration of one turn.
type Command struct {
	Device int
	Action Action
	Value  int
}

// ActuatorValue returns the servo rotation an action maps to.
func ActuatorValue(a Action) int {
	if a == ActionOpen {
		return ValveOpenDegrees
	}
	return ValveClosedDegrees
}

// ValidDevice reports whether id is within the configured valve range.
func ValidDevice(id int) bool {
	return id >= MinDevice && id <= MaxDevice
}
