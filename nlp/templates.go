package nlp

// An IntentTemplate pairs an example phrase with the intent label it stands
// for. Labels may encode compound actions joined by "_AND_".
type IntentTemplate struct {
	Phrase string
	Label  string
}

// DefaultTemplates is the configured set of Vietnamese command templates.
// The slice is ordered; similarity ties between templates break by
// declaration order.
var DefaultTemplates = []IntentTemplate{
	{"bật đèn", "TURN_ON_LIGHT"},
	{"không tắt đèn", "TURN_ON_LIGHT"},
	{"tối quá", "TURN_ON_LIGHT"},
	{"không thấy gì", "TURN_ON_LIGHT"},
	{"tối như mực", "TURN_ON_LIGHT"},
	{"tối rồi", "TURN_ON_LIGHT"},
	{"tắt đèn", "TURN_OFF_LIGHT"},
	{"không bật đèn", "TURN_OFF_LIGHT"},
	{"sáng quá", "TURN_OFF_LIGHT"},
	{"chói quá", "TURN_OFF_LIGHT"},
	{"sáng rồi", "TURN_OFF_LIGHT"},

	{"bật quạt", "TURN_ON_FAN"},
	{"tắt quạt", "TURN_OFF_FAN"},
	{"quạt không ngừng", "TURN_ON_FAN"},
	{"nóng quá", "TURN_ON_FAN"},
	{"hầm quá", "TURN_ON_FAN"},
	{"quạt ngừng", "TURN_OFF_FAN"},
	{"không tắt quạt", "TURN_ON_FAN"},
	{"không bật quạt", "TURN_OFF_FAN"},
	{"lạnh quá", "TURN_OFF_FAN"},

	{"mở cửa", "OPEN_DOOR"},
	{"mở khóa cửa", "OPEN_DOOR"},
	{"tắt khóa cửa", "OPEN_DOOR"},
	{"không đóng cửa", "OPEN_DOOR"},
	{"tôi sắp ra ngoài", "OPEN_DOOR"},
	{"tôi chuẩn bị về nhà", "OPEN_DOOR"},
	{"đóng cửa", "CLOSE_DOOR"},
	{"khóa cửa", "CLOSE_DOOR"},
	{"không mở cửa", "CLOSE_DOOR"},
	{"tôi ra ngoài rồi", "CLOSE_DOOR"},
	{"tôi vô nhà rồi", "CLOSE_DOOR"},

	{"bật chế độ ban đêm", "TURN_ON_LIGHT_AND_TURN_ON_FAN_AND_CLOSE_DOOR"},
	{"tắt chế độ ban đêm", "TURN_OFF_LIGHT_AND_TURN_OFF_FAN_AND_OPEN_DOOR"},
	{"bật chế độ an ninh", "CLOSE_DOOR_AND_TURN_ON_FACE_DETECTION"},
	{"tắt chế độ an ninh", "OPEN_DOOR_AND_TURN_OFF_FACE_DETECTION"},
	{"bật tất cả thiết bị", "TURN_ON_LIGHT_AND_TURN_ON_FAN_AND_OPEN_DOOR"},
	{"tắt tất cả thiết bị", "TURN_OFF_LIGHT_AND_TURN_OFF_FAN_AND_CLOSE_DOOR"},
}
