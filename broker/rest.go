package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/types"
)

// A RESTClient speaks the Adafruit-IO v2 REST API. Every feed value travels
// as a string on the wire; reads are re-parsed with types.ParseValue.
type RESTClient struct {
	baseURL  string
	username string
	key      string
	client   *http.Client
	log      log.Logger
}

// NewRESTClient returns a client for the broker account at baseURL.
func NewRESTClient(baseURL, username, key string) *RESTClient {
	return &RESTClient{
		baseURL:  baseURL,
		username: username,
		key:      key,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      Log.New("obj", "rest_client", "id", logext.RandId(8)),
	}
}

// wireDataPoint matches the broker's JSON shape, where values are strings.
type wireDataPoint struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

func (p wireDataPoint) parsed() DataPoint {
	return DataPoint{Value: types.ParseValue(p.Value), CreatedAt: p.CreatedAt}
}

func (rc *RESTClient) url(parts string) string {
	return fmt.Sprintf("%s/%s%s", rc.baseURL, rc.username, parts)
}

func (rc *RESTClient) do(method, url string, body interface{}, into interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		asJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %v", err)
		}
		reader = bytes.NewReader(asJSON)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-AIO-Key", rc.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		return fmt.Errorf("broker request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rc.log.Warn("broker returned non-OK status", "method", method, "url", url, "status", resp.StatusCode)
		return fmt.Errorf("broker returned status %v", resp.StatusCode)
	}
	if into == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("could not decode broker response: %v", err)
	}
	return nil
}

// Send writes a value to the feed.
func (rc *RESTClient) Send(feedKey string, value types.Value) error {
	payload := map[string]string{"value": value.String()}
	return rc.do("POST", rc.url("/feeds/"+feedKey+"/data"), payload, nil)
}

// LastValue returns the most recent value on the feed.
func (rc *RESTClient) LastValue(feedKey string) (DataPoint, error) {
	var wire wireDataPoint
	if err := rc.do("GET", rc.url("/feeds/"+feedKey+"/data/last"), nil, &wire); err != nil {
		return DataPoint{}, err
	}
	return wire.parsed(), nil
}

// AllValues returns the feed's retained data, newest first.
func (rc *RESTClient) AllValues(feedKey string) ([]DataPoint, error) {
	var wire []wireDataPoint
	if err := rc.do("GET", rc.url("/feeds/"+feedKey+"/data"), nil, &wire); err != nil {
		return nil, err
	}
	points := make([]DataPoint, len(wire))
	for i, p := range wire {
		points[i] = p.parsed()
	}
	return points, nil
}

// Feeds lists the account's feeds.
func (rc *RESTClient) Feeds() ([]Feed, error) {
	var feeds []Feed
	if err := rc.do("GET", rc.url("/feeds"), nil, &feeds); err != nil {
		return nil, err
	}
	return feeds, nil
}

// CreateFeed creates a feed with the given name and key.
func (rc *RESTClient) CreateFeed(name, key string) (Feed, error) {
	var feed Feed
	payload := map[string]string{"name": name, "key": key}
	if err := rc.do("POST", rc.url("/feeds"), payload, &feed); err != nil {
		return Feed{}, err
	}
	return feed, nil
}

// DeleteFeed removes a feed by key.
func (rc *RESTClient) DeleteFeed(key string) error {
	return rc.do("DELETE", rc.url("/feeds/"+key), nil, nil)
}
