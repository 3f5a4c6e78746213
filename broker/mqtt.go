package broker

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/types"
)

const mqttPublishTimeout = 10 * time.Second

// An MQTTClient routes Send through the broker's MQTT endpoint while
// delegating feed management and reads to the REST API. Adafruit-IO exposes
// feeds as topics named "<username>/feeds/<key>".
type MQTTClient struct {
	*RESTClient
	username string
	conn     mqtt.Client
	log      log.Logger
}

// NewMQTTClient connects to the broker's MQTT endpoint. The rest client is
// used for everything except Send.
func NewMQTTClient(brokerURL, username, key string, rest *RESTClient) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetUsername(username).
		SetPassword(key).
		SetClientID("hearth-" + logext.RandId(8)).
		SetAutoReconnect(true)

	conn := mqtt.NewClient(opts)
	if token := conn.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("could not connect to mqtt broker: %v", token.Error())
	}

	return &MQTTClient{
		RESTClient: rest,
		username:   username,
		conn:       conn,
		log:        Log.New("obj", "mqtt_client", "id", logext.RandId(8)),
	}, nil
}

// Send publishes the value to the feed topic at QoS 1.
func (mc *MQTTClient) Send(feedKey string, value types.Value) error {
	topic := fmt.Sprintf("%s/feeds/%s", mc.username, feedKey)
	token := mc.conn.Publish(topic, 1, false, value.String())
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("timed out publishing to %v", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("could not publish to %v: %v", topic, err)
	}
	mc.log.Debug("published to feed", "topic", topic, "value", value.String())
	return nil
}

// Disconnect closes the MQTT connection.
func (mc *MQTTClient) Disconnect() {
	mc.conn.Disconnect(250)
}
