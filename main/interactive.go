//go:build interactive
// +build interactive

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/thejerf/suture"

	"github.com/hearthd/hearth"
	"github.com/hearthd/hearth/broker"
	"github.com/hearthd/hearth/config"
	"github.com/hearthd/hearth/embed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	rest := broker.NewRESTClient(cfg.BrokerBaseURL, cfg.BrokerUsername, cfg.BrokerKey)

	gate := embed.NewReadyGate()
	gate.SetReady()
	encoder := embed.NewHTTPEncoder(cfg.EncoderBaseURL, gate)

	server, err := hearth.NewServer(cfg.DBPath, rest, encoder, encoder)
	if err != nil {
		panic(err)
	}

	supervisor := suture.NewSimple("interactive terminal (hearth app)")
	servToken := supervisor.Add(server)
	defer supervisor.Remove(servToken)
	go supervisor.ServeBackground()

	runInteractive(server)
}

// runInteractive reads Vietnamese voice commands from the terminal and runs
// each through the full pipeline, printing the resolution and outcome.
func runInteractive(server *hearth.Server) {
	fmt.Println("-- hearth interactive --")
	fmt.Println("type a voice command (e.g. \"bật đèn\"), or Q to quit")
	bio := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("> ")
		lineByte, _, err := bio.ReadLine()
		if err != nil {
			return
		}
		line := strings.TrimSpace(string(lineByte))
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "q") {
			return
		}

		entry, result, err := server.HandleVoiceCommand(context.Background(), line)
		if err != nil {
			color.Red("error: %v\n", err)
			continue
		}
		color.Cyan("intent:     %v (matched %q, similarity %.3f)\n",
			result.Intent, result.MatchedTemplate, result.Similarity)
		if result.Condition != nil {
			color.Yellow("condition:  %v %v %v %v\n",
				result.Condition.Sensor, result.Condition.Op, result.Condition.Value, result.Condition.Unit)
		}
		color.Green("recorded:   %v\n", entry.Response)
	}
}
