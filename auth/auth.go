// Package auth issues subscriber tokens and gates what each token may
// receive. Every notification channel is registered with the token that
// created it; the notifier asks the Authorizor before posting to a channel.
package auth

import (
	"github.com/pborman/uuid"
	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/logging"
)

// Log is used to log messages for the auth package. Logs are disabled by
// default; use hearth/logging.SetLevelStr() to set log levels for all
// packages.
var Log = logging.Log.New("pkg", "auth")

// A Token identifies one subscriber session. Get one from
// Authorizor.Login().
type Token string

// An Authorizor hands out Tokens and decides what each Token may access.
type Authorizor interface {
	Login() Token
	Authorize(Token, interface{}) bool
}

// A HearthAuthorizor is the default Authorizor. Instantiate it with New().
type HearthAuthorizor struct {
	log log.Logger
}

// New creates a HearthAuthorizor.
func New() *HearthAuthorizor {
	return &HearthAuthorizor{
		log: Log.New("obj", "authorizor", "id", logext.RandId(8)),
	}
}

// Login returns a fresh Token for a new subscriber.
func (a *HearthAuthorizor) Login() Token {
	return Token(uuid.New())
}

// Authorize reports whether the holder of t may access the named path.
func (a *HearthAuthorizor) Authorize(t Token, path interface{}) bool {
	// TODO: properly implement Authorize
	a.log.Warn("STUB: Authorize always returns true (authorized)")
	return true
}
