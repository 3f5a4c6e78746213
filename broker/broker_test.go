package broker_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hearthd/hearth/broker"
	"github.com/hearthd/hearth/types"
	. "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func TestBroker(t *testing.T) { TestingT(t) }

type RESTSuite struct{}

var _ = Suite(&RESTSuite{})

func (s *RESTSuite) TestLastValueParsesWireString(c *C) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.Method, Equals, "GET")
		c.Check(r.URL.Path, Equals, "/tester/feeds/temperature-sensor/data/last")
		c.Check(r.Header.Get("X-AIO-Key"), Equals, "secret")
		json.NewEncoder(w).Encode(map[string]string{
			"value":      "27.5",
			"created_at": "2024-05-01T10:00:00Z",
		})
	}))
	defer server.Close()

	client := broker.NewRESTClient(server.URL, "tester", "secret")
	point, err := client.LastValue("temperature-sensor")
	c.Assert(err, IsNil)
	c.Check(point.Value, Equals, types.FloatValue(27.5))
	c.Check(point.CreatedAt.IsZero(), Equals, false)
}

func (s *RESTSuite) TestSendWritesWireString(c *C) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.Method, Equals, "POST")
		c.Check(r.URL.Path, Equals, "/tester/feeds/door/data")
		c.Assert(json.NewDecoder(r.Body).Decode(&got), IsNil)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := broker.NewRESTClient(server.URL, "tester", "secret")
	c.Assert(client.Send("door", types.StringValue("ON")), IsNil)
	c.Check(got["value"], Equals, "ON")
}

func (s *RESTSuite) TestSendSurfacesBrokerFailure(c *C) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	client := broker.NewRESTClient(server.URL, "tester", "secret")
	c.Check(client.Send("light", types.IntValue(1)), NotNil)
}

func (s *RESTSuite) TestFeeds(c *C) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"id": "1", "name": "Light", "key": "light"},
			{"id": "2", "name": "Temperature", "key": "temperature-sensor"},
		})
	}))
	defer server.Close()

	client := broker.NewRESTClient(server.URL, "tester", "secret")
	feeds, err := client.Feeds()
	c.Assert(err, IsNil)
	c.Assert(feeds, HasLen, 2)
	c.Check(feeds[0].Key, Equals, "light")
}
