// Package logging owns the root log15 logger shared by every hearth package.
// Packages derive their own loggers from Log with a "pkg" context key; output
// is discarded until a level is set.
package logging

import (
	"fmt"

	log "gopkg.in/inconshreveable/log15.v2"
)

// Log is the root logger for all hearth logs. Logs are disabled by default;
// use SetLevelStr to set log levels for all packages, or Log.SetHandler() to
// set a custom handler.
var Log = log.New()

func init() {
	Log.SetHandler(log.DiscardHandler())
}

// SetLevelStr sets the log level of the root logger. Possible values are
// "off", "debug", "info", "warn", "error" and "crit"; anything unparseable
// turns logs off.
func SetLevelStr(lvlstr string) {
	if lvlstr == "off" {
		Log.SetHandler(log.DiscardHandler())
		return
	}
	lvl, err := log.LvlFromString(lvlstr)
	if err != nil {
		fmt.Printf("(!) unknown log level %q, turning logs off\n", lvlstr)
		Log.SetHandler(log.DiscardHandler())
		return
	}
	Log.SetHandler(SourceHandler(log.StdoutHandler, lvl))
}

// SourceHandler filters records below lvl and annotates the rest with the
// calling function and source line.
func SourceHandler(h log.Handler, lvl log.Lvl) log.Handler {
	return log.FuncHandler(func(r *log.Record) error {
		if r.Lvl > lvl {
			return nil
		}
		r.Ctx = append(r.Ctx, "fn", fmt.Sprintf("%+n", r.Call), "ln", fmt.Sprint(r.Call))
		return h.Log(r)
	})
}
