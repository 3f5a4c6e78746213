package hearth

import (
	"strings"
	"time"

	"github.com/hearthd/hearth/types"
)

// statusPrefixes maps intent verb prefixes onto target statuses. Order
// matters only in that each token is claimed by the first prefix that
// matches it.
var statusPrefixes = []struct {
	prefix string
	status string
}{
	{"TURN_ON", types.StatusOn},
	{"TURN_OFF", types.StatusOff},
	{"OPEN", types.StatusOn},
	{"CLOSE", types.StatusOff},
}

// kindAliases translates intent nouns to canonical device kinds. Nouns with
// no alias fall back to their lowercased form.
var kindAliases = map[string]string{
	"LIGHT":          types.KindLight,
	"FAN":            types.KindFan,
	"DOOR":           types.KindDoor,
	"FACE_DETECTION": types.KindCamera,
}

// ResolveActions expands an intent label into the ordered list of device
// actions it names. Compound labels are split on the _AND_ connector and
// resolved token by token; tokens with no recognized verb prefix are
// dropped. Resolution never consults device state.
func ResolveActions(intentLabel string) []types.PendingAction {
	var actions []types.PendingAction
	for _, token := range strings.Split(intentLabel, "_AND_") {
		for _, p := range statusPrefixes {
			if !strings.HasPrefix(token, p.prefix+"_") {
				continue
			}
			noun := token[len(p.prefix)+1:]
			kind, ok := kindAliases[noun]
			if !ok {
				kind = strings.ToLower(noun)
			}
			actions = append(actions, types.PendingAction{
				DeviceKind: kind,
				Status:     p.status,
			})
			break
		}
	}
	return actions
}

// actionValue derives a device's stored value from its kind and target
// status. Lights are binary, doors speak the broker's ON/OFF strings, and
// fans carry a speed: the requested one when given, otherwise full on and
// stopped off.
func actionValue(kind, status string, fanSpeed float64) types.Value {
	on := status == types.StatusOn
	switch kind {
	case types.KindDoor:
		if on {
			return types.StringValue("ON")
		}
		return types.StringValue("OFF")
	case types.KindFan:
		if on {
			if fanSpeed > 0 {
				return types.IntValue(int64(fanSpeed))
			}
			return types.IntValue(100)
		}
		if fanSpeed > 0 {
			return types.IntValue(int64(fanSpeed))
		}
		return types.IntValue(0)
	default:
		if on {
			return types.IntValue(1)
		}
		return types.IntValue(0)
	}
}

// gateResult is the outcome of evaluating a gating condition: whether the
// actions are confirmed, any scheduling delay, and any fan speed the
// condition itself requested.
type gateResult struct {
	confirm  bool
	delay    time.Duration
	fanSpeed float64
}

// sensorDeviceTypes maps condition sensor kinds to the device type that
// holds their current reading.
var sensorDeviceTypes = map[string]string{
	types.SensorTemperature: types.KindTemperatureSensor,
	types.SensorHumidity:    types.KindHumiditySensor,
	types.SensorLight:       types.KindLightSensor,
}

// evaluateGate decides whether a condition permits its actions to run. A nil
// condition always confirms. Time conditions confirm with a delay; fan
// conditions confirm with a speed. Threshold conditions compare the named
// sensor's current reading against the condition's bound; a missing sensor
// is an error, not a silent pass. Evaluation reads state but never writes,
// so re-evaluating an unmet condition has no effect.
func (s *Server) evaluateGate(condition *types.Condition) (gateResult, error) {
	if condition == nil {
		return gateResult{confirm: true}, nil
	}
	switch condition.Sensor {
	case types.SensorTime:
		return gateResult{
			confirm: true,
			delay:   time.Duration(condition.Value * float64(time.Second)),
		}, nil
	case types.SensorFan:
		return gateResult{confirm: true, fanSpeed: condition.Value}, nil
	}

	devType, ok := sensorDeviceTypes[condition.Sensor]
	if !ok {
		return gateResult{}, nil
	}
	dev, err := s.GetDeviceByType(devType)
	if err != nil {
		return gateResult{}, err
	}
	reading, ok := dev.Value.Num()
	if !ok {
		s.log.Warn("sensor reading is not numeric", "sensor", devType, "value", dev.Value.String())
		return gateResult{}, nil
	}

	var confirm bool
	switch condition.Op {
	case types.OpGreater:
		confirm = reading > condition.Value
	case types.OpLess:
		confirm = reading < condition.Value
	default:
		confirm = reading == condition.Value
	}
	return gateResult{confirm: confirm}, nil
}
