package notif

import "github.com/hearthd/hearth/types"

// A Notification can name the wire event it is delivered under.
type Notification interface {
	Event() string
	eventClass() EventsMask
}

// A DeviceNotifier can notify listeners of changes to devices.
type DeviceNotifier interface {
	PostDeviceStatus(dev types.Device)
	PostDeviceValue(dev types.Device)
}

// An EnvironmentNotifier can notify listeners of new sensor readings.
type EnvironmentNotifier interface {
	PostEnvironment(kind string, value types.Value)
}

// A DeviceNotification describes a change to a single device. Class is
// Status for on/off flips and Value for the accompanying value write.
type DeviceNotification struct {
	DeviceID   string      `json:"id"`
	DeviceType string      `json:"type"`
	Status     string      `json:"status"`
	Value      types.Value `json:"value"`
	Class      EventsMask  `json:"-"`
}

// Event returns the wire event name.
func (n DeviceNotification) Event() string {
	if n.Class == Value {
		return "device:value"
	}
	return "device:status"
}

func (n DeviceNotification) eventClass() EventsMask { return n.Class }

// An EnvironmentNotification carries a fresh sensor reading.
type EnvironmentNotification struct {
	Kind  string      `json:"kind"`
	Value types.Value `json:"value"`
}

// Event returns the wire event name, e.g. "environment:temperature".
func (n EnvironmentNotification) Event() string { return "environment:" + n.Kind }

func (n EnvironmentNotification) eventClass() EventsMask { return Environment }

// PostDeviceStatus notifies all listeners that a device's status changed.
func (n *Notifier) PostDeviceStatus(dev types.Device) {
	n.post(DeviceNotification{
		DeviceID:   dev.ID,
		DeviceType: dev.Type,
		Status:     dev.Status,
		Value:      dev.Value,
		Class:      Status,
	})
}

// PostDeviceValue notifies all listeners that a device's value changed.
func (n *Notifier) PostDeviceValue(dev types.Device) {
	n.post(DeviceNotification{
		DeviceID:   dev.ID,
		DeviceType: dev.Type,
		Status:     dev.Status,
		Value:      dev.Value,
		Class:      Value,
	})
}

// PostEnvironment notifies all listeners of a new sensor reading.
func (n *Notifier) PostEnvironment(kind string, value types.Value) {
	n.post(EnvironmentNotification{Kind: kind, Value: value})
}
