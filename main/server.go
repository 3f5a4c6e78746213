//go:build hearthd
// +build hearthd

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture"

	"github.com/hearthd/hearth"
	"github.com/hearthd/hearth/api"
	"github.com/hearthd/hearth/broker"
	"github.com/hearthd/hearth/config"
	"github.com/hearthd/hearth/embed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	hearth.SetLogLevel(cfg.LogLevel)

	bk, err := buildBroker(cfg)
	if err != nil {
		panic(err)
	}

	gate := embed.NewReadyGate()
	encoder := embed.NewHTTPEncoder(cfg.EncoderBaseURL, gate)
	go openGateWhenHealthy(cfg.EncoderBaseURL, gate)

	server, err := hearth.NewServer(cfg.DBPath, bk, encoder, encoder)
	if err != nil {
		panic(err)
	}
	server.SetVerificationThresholds(cfg.OptimalThreshold, cfg.ConfidenceThreshold)
	if err := server.SyncFromBroker(""); err != nil {
		fmt.Printf("warning: could not sync devices from broker: %v\n", err)
	}

	supervisor := suture.NewSimple("hearthd")
	servToken := supervisor.Add(server)
	defer supervisor.Remove(servToken)
	go supervisor.ServeBackground()

	httpAPI := api.New(server, cfg.ListenAddr)
	go httpAPI.Serve()

	fmt.Printf("hearthd serving on %v\n", cfg.ListenAddr)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	httpAPI.Stop()
	if err := server.StopAndWait(10 * time.Second); err != nil {
		fmt.Printf("error while stopping hearth server: %v\n", err)
	}
}

func buildBroker(cfg config.Config) (broker.Client, error) {
	rest := broker.NewRESTClient(cfg.BrokerBaseURL, cfg.BrokerUsername, cfg.BrokerKey)
	if cfg.MQTTBrokerURL == "" {
		return rest, nil
	}
	return broker.NewMQTTClient(cfg.MQTTBrokerURL, cfg.BrokerUsername, cfg.BrokerKey, rest)
}

// openGateWhenHealthy polls the inference sidecar and opens the encoder gate
// once it responds. Encoder calls queue behind the gate until then.
func openGateWhenHealthy(baseURL string, gate *embed.ReadyGate) {
	for {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				gate.SetReady()
				return
			}
		}
		time.Sleep(time.Second)
	}
}
