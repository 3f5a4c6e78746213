package hearth

import (
	"time"

	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/lib"
	"github.com/hearthd/hearth/types"
)

// An envWatcher polls the broker's sensor feeds, persists fresh readings on
// the matching sensor device rows, and broadcasts readings to environment
// subscribers. A change detector suppresses unchanged and rapid-fire
// readings so quiet sensors stay quiet on the wire.
type envWatcher struct {
	srv      *Server
	interval time.Duration
	differ   *lib.ChangeDetector
	stop     chan struct{}
	log      log.Logger
}

// sensorFeeds maps environment kinds to the device type (and broker feed
// key) carrying their readings.
var sensorFeeds = map[string]string{
	types.SensorTemperature: types.KindTemperatureSensor,
	types.SensorHumidity:    types.KindHumiditySensor,
	types.SensorLight:       types.KindLightSensor,
}

func newEnvWatcher(srv *Server, interval time.Duration) *envWatcher {
	return &envWatcher{
		srv:      srv,
		interval: interval,
		differ:   lib.NewChangeDetector(interval),
		stop:     make(chan struct{}),
		log:      Log.New("obj", "envwatcher", "id", logext.RandId(8)),
	}
}

// Serve polls until Stop is called. Run it under a supervisor.
func (w *envWatcher) Serve() {
	w.log.Debug("environment watcher starting", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.stop:
			w.log.Debug("environment watcher stopping")
			return
		}
	}
}

func (w *envWatcher) Stop() {
	close(w.stop)
}

// poll fetches one reading per sensor feed. A feed that errors or has no
// matching device row is skipped; the other feeds still report.
func (w *envWatcher) poll() {
	for kind, devType := range sensorFeeds {
		point, err := w.srv.broker.LastValue(devType)
		if err != nil {
			w.log.Debug("could not read sensor feed", "feed", devType, "err", err)
			continue
		}
		dev, err := w.srv.GetDeviceByType(devType)
		if err != nil {
			w.log.Debug("no device row for sensor feed", "feed", devType, "err", err)
			continue
		}
		if err := w.srv.SaveDeviceState(dev.ID, dev.Status, point.Value); err != nil {
			w.log.Warn("could not persist sensor reading", "feed", devType, "err", err)
			continue
		}
		if w.differ.Consider(kind, point.Value) {
			w.srv.PostEnvironment(kind, point.Value)
		}
	}
}
