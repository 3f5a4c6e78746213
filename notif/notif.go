// Package notif fans device and environment state changes out to live
// subscribers. Posting is synchronous: every subscriber channel is offered
// the event, in registration order, before the poster returns. A full
// channel drops the event rather than blocking the engine.
package notif

import (
	"fmt"
	"strings"
	"sync"

	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/auth"
	"github.com/hearthd/hearth/logging"
)

// Log is used to log messages for the notif package. Logs are disabled by
// default; use hearth/logging.SetLevelStr() to set log levels for all
// packages.
var Log = logging.Log.New("pkg", "notif")

// An EventsMask selects event classes (powers of two for bitwise arithmetic).
type EventsMask uint8

// Possible event classes.
const (
	All         = EventsMask(0)
	Status      = EventsMask(1)
	Value       = EventsMask(2)
	Environment = EventsMask(4)
)

const chanCap = 100 // The capacity of returned notification channels

// A Provider provides methods for listeners to subscribe to notifications.
type Provider interface {
	Listen(auth.Token, ...interface{}) <-chan interface{}
	Unlisten(<-chan interface{})
}

// A Receiver provides methods for posting notifications to listeners.
type Receiver interface {
	DeviceNotifier
	EnvironmentNotifier
}

// A ProviderReceiver provides both subscription and posting methods.
type ProviderReceiver interface {
	Provider
	Receiver
}

// A DeviceFilter selects notifications for devices of a given type. A zero
// Type matches all devices.
type DeviceFilter struct {
	Type   string
	Events EventsMask
}

// An EnvironmentFilter selects environment readings of a given kind. A zero
// Kind matches all kinds.
type EnvironmentFilter struct {
	Kind string
}

type subscription struct {
	ch          chan interface{}
	mask        EventsMask
	deviceTypes map[string]struct{}
	envKinds    map[string]struct{}
	everything  bool
}

func (sub *subscription) matches(n Notification) bool {
	if sub.everything {
		return true
	}
	if sub.mask != All && sub.mask&n.eventClass() == 0 {
		return false
	}
	switch typed := n.(type) {
	case DeviceNotification:
		if len(sub.deviceTypes) == 0 {
			return sub.mask&(Status|Value) != 0
		}
		_, ok := sub.deviceTypes[typed.DeviceType]
		return ok
	case EnvironmentNotification:
		if len(sub.envKinds) == 0 {
			return sub.mask&Environment != 0
		}
		_, ok := sub.envKinds[typed.Kind]
		return ok
	}
	return false
}

// A Notifier implements ProviderReceiver.
type Notifier struct {
	authorizor auth.Authorizor

	lock         sync.RWMutex
	subs         []*subscription // in registration order
	channelLocks map[chan interface{}]*sync.Mutex

	// authTokenByChannel records the auth token used to create each channel
	authTokenByChannel map[chan interface{}]auth.Token

	log log.Logger
}

// New creates a new notifier.
func New(authorizor auth.Authorizor) *Notifier {
	return &Notifier{
		authorizor:         authorizor,
		channelLocks:       make(map[chan interface{}]*sync.Mutex),
		authTokenByChannel: make(map[chan interface{}]auth.Token),
		log:                Log.New("obj", "notifier", "id", logext.RandId(8)),
	}
}

// Listen returns a channel which will be populated with notifications from
// the notifier. If one or more filters are provided, only notifications
// matching those filters will populate the channel. If no filters are
// provided, all notifications will populate the channel.
func (n *Notifier) Listen(token auth.Token, filters ...interface{}) <-chan interface{} {
	if n == nil {
		return nil
	}

	nChan := make(chan interface{}, chanCap) // new channel for notifications
	sub := &subscription{
		ch:          nChan,
		deviceTypes: make(map[string]struct{}),
		envKinds:    make(map[string]struct{}),
		everything:  len(filters) == 0,
	}

	for _, filter := range filters {
		// If the filter is a string, try parsing it into a filter struct
		if asStr, ok := filter.(string); ok {
			filter = parseStr(asStr)
		}

		switch typed := filter.(type) {
		case DeviceFilter:
			mask := typed.Events
			if mask == All {
				mask = Status | Value
			}
			sub.mask |= mask
			if typed.Type != "" {
				sub.deviceTypes[typed.Type] = struct{}{}
			}
		case EnvironmentFilter:
			sub.mask |= Environment
			if typed.Kind != "" {
				sub.envKinds[typed.Kind] = struct{}{}
			}
		default:
			n.log.Warn("unhandled filter type", "filter_type", fmt.Sprintf("%T", filter))
		}
	}

	n.lock.Lock()
	defer n.lock.Unlock()
	n.authTokenByChannel[nChan] = token // save the token for later authentication
	n.channelLocks[nChan] = &sync.Mutex{}
	n.subs = append(n.subs, sub)
	return nChan
}

// Unlisten removes a subscriber channel. Called by the transport layer when
// a subscriber's connection errors on receive; disconnected subscribers are
// not pruned proactively.
func (n *Notifier) Unlisten(ch <-chan interface{}) {
	if n == nil {
		return
	}
	n.lock.Lock()
	defer n.lock.Unlock()
	for i, sub := range n.subs {
		if sub.ch == ch {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			delete(n.authTokenByChannel, sub.ch)
			delete(n.channelLocks, sub.ch)
			return
		}
	}
}

// post offers a notification to every matching subscriber, in registration
// order, before returning.
func (n *Notifier) post(val Notification) {
	n.lock.RLock()
	defer n.lock.RUnlock()
	for _, sub := range n.subs {
		if !sub.matches(val) {
			continue
		}
		token, ok := n.authTokenByChannel[sub.ch]
		if !ok {
			continue
		}
		if n.authorizor.Authorize(token, val.Event()) {
			n.doPost(sub.ch, val)
		}
	}
}

// doPost posts a notification to a channel. If it is full, doPost will drop
// the notification and print a log warning.
func (n *Notifier) doPost(nchan chan interface{}, val interface{}) {
	if lock, ok := n.channelLocks[nchan]; ok {
		lock.Lock()
		if len(nchan) < cap(nchan) {
			n.log.Debug("posting notification to channel", "value", val)
			nchan <- val
		} else {
			n.log.Warn("dropping notification to channel because it is full")
		}
		lock.Unlock()
	} else {
		n.log.Warn("dropping notification to channel because a matching channel lock was not found")
	}
}

// parseStr parses a string into a notification registration type.
// If no matches exist, returns nil.
func parseStr(str string) interface{} {
	switch str {
	case "devices":
		return DeviceFilter{}
	case "environment":
		return EnvironmentFilter{}
	default:
		return nil
	}
}

// String returns a human-readable string representation of the EventsMask
func (m EventsMask) String() string {
	eventStr := ""
	if m&Status != 0 {
		eventStr += " status "
	}
	if m&Value != 0 {
		eventStr += " value "
	}
	if m&Environment != 0 {
		eventStr += " environment "
	}
	return strings.TrimSpace(eventStr)
}
