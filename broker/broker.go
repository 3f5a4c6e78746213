// Package broker talks to the external IoT broker that mirrors every device
// as a feed. The feed key equals the device's type string. Implementations
// cover the Adafruit-IO REST API and an optional MQTT publish path.
package broker

import (
	"time"

	"github.com/hearthd/hearth/logging"
	"github.com/hearthd/hearth/types"
)

// Log is used to log messages for the broker package. Logs are disabled by
// default; use hearth/logging.SetLevelStr() to set log levels for all
// packages.
var Log = logging.Log.New("pkg", "broker")

// A Feed describes one broker channel.
type Feed struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// A DataPoint is one value read back from a feed.
type DataPoint struct {
	Value     types.Value `json:"value"`
	CreatedAt time.Time   `json:"created_at"`
}

// A Client exposes the broker operations the engine consumes. Send blocks
// until the broker acknowledges the write; the engine keeps it off the
// request path behind the actuation queue.
type Client interface {
	Send(feedKey string, value types.Value) error
	LastValue(feedKey string) (DataPoint, error)
	AllValues(feedKey string) ([]DataPoint, error)
	Feeds() ([]Feed, error)
	CreateFeed(name, key string) (Feed, error)
	DeleteFeed(key string) error
}
