//go:build repeat_to_console
// +build repeat_to_console

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/thejerf/suture"

	"github.com/hearthd/hearth"
	"github.com/hearthd/hearth/broker"
	"github.com/hearthd/hearth/config"
	"github.com/hearthd/hearth/embed"
	"github.com/hearthd/hearth/notif"
)

func main() {
	hearth.SetLogLevel("debug")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	rest := broker.NewRESTClient(cfg.BrokerBaseURL, cfg.BrokerUsername, cfg.BrokerKey)

	gate := embed.NewReadyGate()
	gate.SetReady() // console app never encodes, no model to wait for
	encoder := embed.NewHTTPEncoder(cfg.EncoderBaseURL, gate)

	server, err := hearth.NewServer(cfg.DBPath, rest, encoder, encoder)
	if err != nil {
		panic(err)
	}

	supervisor := suture.NewSimple("repeat to console (hearth app)")
	servToken := supervisor.Add(server)
	defer supervisor.Remove(servToken)
	go supervisor.ServeBackground()

	repeatUpdatesToConsole(server)
}

// repeatUpdatesToConsole listens for updates, printing any to console.
func repeatUpdatesToConsole(server *hearth.Server) {
	myToken := server.Login()
	updateChan := server.Listen(myToken) // without specifying filters, this will listen to everything

	fmt.Println("listening to hearth server and printing updates to console...")
	for {
		update := <-updateChan
		switch typed := update.(type) {
		case notif.DeviceNotification:
			color.Blue("%v %v: status=%v value=%v\n", typed.Event(), typed.DeviceID, typed.Status, typed.Value.String())
		case notif.EnvironmentNotification:
			color.Green("%v: %v\n", typed.Event(), typed.Value.String())
		default:
			color.Red("unhandled update type from updateChan: %T (%v)\n", update, update)
		}
	}
}
