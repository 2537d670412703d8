package domain

import (
	"time"
)

// StateDocument is one plant snapshot from the external state store.
// Documents are append-only from the sensor producer; the orchestrator
// only mutates the actuator map of the most recent one, scoped by the
// immutable document id.
type StateDocument struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Sensors   SensorData  `json:"sensors"`
	Actuators map[int]int `json:"actuators"`
}

// SensorData mirrors the snapshot's line and environment sensor block.
type SensorData struct {
	TemperatureC    float64 `json:"temperature_c"`
	HumidityPct     float64 `json:"humidity_pct"`
	PH              float64 `json:"ph"`
	EnvTemperatureC float64 `json:"env_temperature_c"`
	EnvHumidityPct  float64 `json:"env_humidity_pct"`
}
