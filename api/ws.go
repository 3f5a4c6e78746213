package api

import (
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/hearthd/hearth/notif"
)

// keepAliveInterval paces the idle "Waiting" events that keep proxies from
// reaping quiet subscriber connections.
const keepAliveInterval = 10 * time.Second

// keepAliveEvent is the idle frame sent to quiet subscribers.
type keepAliveEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

var waitingEvent = keepAliveEvent{Event: "Waiting", Message: "Nothing changed"}

// A wsCommand is an inbound subscriber frame. The only supported action is
// "filter", which replaces the connection's subscription.
type wsCommand struct {
	Action string `mapstructure:"action"`
	Filter struct {
		Type string `mapstructure:"type"` // device type, for /ws/devices
		Kind string `mapstructure:"kind"` // sensor kind, for /ws/environment
	} `mapstructure:"filter"`
}

func (a *API) devicesWS(w http.ResponseWriter, r *http.Request) {
	a.serveWS(w, r, []interface{}{notif.DeviceFilter{}}, func(cmd wsCommand) []interface{} {
		return []interface{}{notif.DeviceFilter{Type: cmd.Filter.Type}}
	})
}

func (a *API) environmentWS(w http.ResponseWriter, r *http.Request) {
	a.serveWS(w, r, []interface{}{notif.EnvironmentFilter{}}, func(cmd wsCommand) []interface{} {
		return []interface{}{notif.EnvironmentFilter{Kind: cmd.Filter.Kind}}
	})
}

// serveWS pumps notifications from a subscription out over one websocket
// connection. The writer goroutine owns all writes, including keep-alives;
// the read loop only parses filter commands and signals disconnect.
func (a *API) serveWS(w http.ResponseWriter, r *http.Request, initial []interface{}, parse func(wsCommand) []interface{}) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("could not upgrade websocket connection", "err", err)
		return
	}
	defer conn.Close()

	token := a.srv.Login()
	resub := make(chan []interface{})
	gone := make(chan struct{}) // closed by the reader on disconnect
	done := make(chan struct{}) // closed by the writer on exit
	defer close(done)

	go func() {
		defer close(gone)
		for {
			var frame map[string]interface{}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			var cmd wsCommand
			if err := mapstructure.Decode(frame, &cmd); err != nil {
				a.log.Debug("ignoring malformed websocket frame", "err", err)
				continue
			}
			if cmd.Action != "filter" {
				continue
			}
			select {
			case resub <- parse(cmd):
			case <-done:
				return
			}
		}
	}()

	ch := a.srv.Listen(token, initial...)
	defer func() { a.srv.Unlisten(ch) }()

	ticker := time.NewTicker(a.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(n); err != nil {
				a.log.Debug("dropping websocket subscriber", "err", err)
				return
			}
		case filters := <-resub:
			a.srv.Unlisten(ch)
			ch = a.srv.Listen(token, filters...)
		case <-ticker.C:
			if err := conn.WriteJSON(waitingEvent); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
