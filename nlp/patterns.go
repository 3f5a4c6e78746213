// Package nlp turns raw Vietnamese utterances into structured intents and
// conditions: an ordered pattern matcher extracts at most one numeric or
// temporal condition, and an embedding classifier picks the closest intent
// template by cosine similarity.
package nlp

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hearthd/hearth/logging"
	"github.com/hearthd/hearth/types"
)

// Log is used to log messages for the nlp package. Logs are disabled by
// default; use hearth/logging.SetLevelStr() to set log levels for all
// packages.
var Log = logging.Log.New("pkg", "nlp")

type patternRule struct {
	re     *regexp.Regexp
	sensor string
}

// The rules are ordered; the first rule whose regex matches the utterance
// wins and no later rule is tried.
var patternRules = []patternRule{
	{regexp.MustCompile(`(trời )?(nhiệt[\s_]*độ|nóng|lạnh)(?:\D*?(\d+)\s*(độ[\s_]*[CcKk]|°[CcKk]|độ)?)?`), types.SensorTemperature},
	{regexp.MustCompile(`(trời )?độ[\s_]*ẩm(?:\D*?(\d+)\s*(phần[\s_]*trăm|%)?)?`), types.SensorHumidity},
	{regexp.MustCompile(`(trời|buổi)?\s*\w*\s*(tối|sáng)`), types.SensorLight},
	{regexp.MustCompile(`(mức|tốc độ)\D*?(\d+)\s*(phần[\s_]*trăm|%)|(nhanh|chậm|vừa|thường|mạnh|yếu)`), types.SensorFan},
	{regexp.MustCompile(`(lúc|sau|trước)\s*(?:(?P<hour>\d+)\s*(?:giờ|h|g)\b)?\s*(?:(?P<minute>\d+)\s*(?:phút|p|m)\b)?\s*(?:(?P<second>\d+)\s*(?:giây|s)\b)?`), types.SensorTime},
}

var (
	greaterKeywords = []string{"trên", "sau", "nóng", "nhiều hơn"}
	lessKeywords    = []string{"dưới", "trước", "lạnh", "ít hơn"}
)

func containsAny(sentence string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(sentence, kw) {
			return true
		}
	}
	return false
}

// ExtractCondition applies the ordered pattern rules to the utterance and
// returns the condition extracted by the first matching rule, or nil if no
// rule matches. Malformed input never produces an error, only an absent
// condition.
func ExtractCondition(sentence string) *types.Condition {
	for _, rule := range patternRules {
		match := rule.re.FindStringSubmatch(sentence)
		if match == nil {
			continue
		}

		// The operator keywords are checked against the whole utterance,
		// not just the matched fragment.
		op := types.OpEquals
		if containsAny(sentence, greaterKeywords) {
			op = types.OpGreater
		} else if containsAny(sentence, lessKeywords) {
			op = types.OpLess
		}

		switch rule.sensor {
		case types.SensorTime:
			return timeCondition(rule.re, match)
		case types.SensorTemperature:
			return temperatureCondition(sentence, match, op)
		case types.SensorHumidity:
			return humidityCondition(sentence, match, op)
		case types.SensorLight:
			return lightCondition(sentence)
		case types.SensorFan:
			return fanCondition(sentence, match)
		}
	}
	return nil
}

func timeCondition(re *regexp.Regexp, match []string) *types.Condition {
	var hour, minute, second int
	for i, name := range re.SubexpNames() {
		if match[i] == "" {
			continue
		}
		n, err := strconv.Atoi(match[i])
		if err != nil {
			continue
		}
		switch name {
		case "hour":
			hour = n
		case "minute":
			minute = n
		case "second":
			second = n
		}
	}
	total := hour*3600 + minute*60 + second
	return &types.Condition{
		Sensor: types.SensorTime,
		Op:     types.OpEquals,
		Value:  float64(total),
		Unit:   "seconds",
	}
}

func temperatureCondition(sentence string, match []string, op string) *types.Condition {
	cond := &types.Condition{Sensor: types.SensorTemperature, Op: op, Unit: "°C"}
	if lit := match[3]; lit != "" {
		val, _ := strconv.Atoi(lit)
		// Kelvin literals are normalized to Celsius.
		unit := strings.ToLower(match[4])
		if strings.HasSuffix(unit, "k") {
			val -= 273
		}
		cond.Value = float64(val)
		return cond
	}
	switch {
	case strings.Contains(sentence, "nóng"), strings.Contains(sentence, "cao"):
		cond.Op = types.OpGreater
		cond.Value = 30
	case strings.Contains(sentence, "lạnh"), strings.Contains(sentence, "thấp"):
		cond.Op = types.OpLess
		cond.Value = 20
	}
	return cond
}

func humidityCondition(sentence string, match []string, op string) *types.Condition {
	cond := &types.Condition{Sensor: types.SensorHumidity, Op: op, Unit: "%"}
	if lit := match[2]; lit != "" {
		val, _ := strconv.Atoi(lit)
		cond.Value = float64(val)
		return cond
	}
	switch {
	case strings.Contains(sentence, "khô"):
		cond.Op = types.OpLess
		cond.Value = 30
	case strings.Contains(sentence, "ẩm"):
		cond.Op = types.OpGreater
		cond.Value = 70
	}
	return cond
}

// lightCondition never carries a literal; brightness words pick fixed
// thresholds.
func lightCondition(sentence string) *types.Condition {
	cond := &types.Condition{Sensor: types.SensorLight, Unit: "lux"}
	switch {
	case strings.Contains(sentence, "tối"):
		cond.Op = types.OpLess
		cond.Value = 20
	case strings.Contains(sentence, "sáng"):
		cond.Op = types.OpGreater
		cond.Value = 30
	}
	return cond
}

// fanCondition is a speed parameter, not a gate; the operator is always "=".
func fanCondition(sentence string, match []string) *types.Condition {
	cond := &types.Condition{Sensor: types.SensorFan, Op: types.OpEquals, Unit: "%"}
	if lit := match[2]; lit != "" {
		val, _ := strconv.Atoi(lit)
		cond.Value = float64(val)
		return cond
	}
	switch {
	case containsAny(sentence, []string{"nhanh", "mạnh"}):
		cond.Value = 100
	case containsAny(sentence, []string{"chậm", "yếu"}):
		cond.Value = 30
	case containsAny(sentence, []string{"vừa", "thường"}):
		cond.Value = 70
	}
	return cond
}
