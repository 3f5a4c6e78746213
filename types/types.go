// Package types defines the shared data model of the hearth engine: devices,
// cameras, conditions extracted from utterances, pending actions, and the
// loosely-typed values carried on broker feeds.
package types

import "time"

// Device statuses. StatusNone is used for sensors, which report values but
// are never switched.
const (
	StatusOn   = "on"
	StatusOff  = "off"
	StatusNone = ""
)

// Known actuator kinds. Any other device type is treated as a sensor.
const (
	KindLight  = "light"
	KindFan    = "fan"
	KindDoor   = "door"
	KindCamera = "camera"
)

// Sensor feed types, named after the broker feed keys they map to.
const (
	KindTemperatureSensor = "temperature-sensor"
	KindHumiditySensor    = "humidity-sensor"
	KindLightSensor       = "light-sensor"
)

// IsSensorType reports whether a device type represents a sensor. The
// classification is fixed at creation time from the type string.
func IsSensorType(deviceType string) bool {
	switch deviceType {
	case KindLight, KindFan, KindDoor:
		return false
	}
	return true
}

// A Device represents a single physical unit known to the engine. Actuators
// (light, fan, door) carry a Status; sensors only carry a Value synced from
// the broker. Status and Value always change together in a single commit.
type Device struct {
	ID     string `db:"id"`
	Name   string `db:"name"`
	Type   string `db:"type"`
	Sensor bool   `db:"sensor"`
	RoomID string `db:"room_id"`
	Icon   string `db:"icon"`
	Status string `db:"status"`
	Value  Value  `db:"value"`
}

// A Camera watches a room and holds the ordered list of user ids whose face
// embeddings may open the room's door.
type Camera struct {
	ID      string   `db:"id"`
	Name    string   `db:"name"`
	RoomID  string   `db:"room_id"`
	Active  bool     `db:"active"`
	UserIDs []string `db:"-"`
}

// A Room groups devices and cameras.
type Room struct {
	ID   string `db:"id"`
	Name string `db:"name"`
	Icon string `db:"icon"`
}

// An Embedding is an immutable fixed-length numeric vector produced by one of
// the encoder collaborators.
type Embedding []float64

// Condition sensor kinds, as extracted from an utterance.
const (
	SensorTemperature = "temperature"
	SensorHumidity    = "humidity"
	SensorLight       = "light"
	SensorFan         = "fan"
	SensorTime        = "time"
)

// Condition operators.
const (
	OpEquals  = "="
	OpGreater = ">"
	OpLess    = "<"
)

// A Condition is a numeric or temporal constraint extracted from an
// utterance. At most one Condition is extracted per utterance.
type Condition struct {
	Sensor string  `json:"sensor"`
	Op     string  `json:"op"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
}

// A PendingAction is one resolved (target kind, desired status) pair. It is
// consumed immediately or captured by a delayed task.
type PendingAction struct {
	DeviceKind string `json:"device"`
	Status     string `json:"status"`
}

// An ActuationMessage is a single outbound write to the external broker. The
// feed key equals the device's type string.
type ActuationMessage struct {
	FeedKey string
	Value   Value
}

// A HistoryEntry records one handled voice command and the engine's final
// response label.
type HistoryEntry struct {
	ID        int64     `db:"id"`
	Request   string    `db:"request"`
	Response  string    `db:"response"`
	CreatedAt time.Time `db:"created_at"`
}
