package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "gopkg.in/check.v1"

	"github.com/hearthd/hearth"
	"github.com/hearthd/hearth/broker"
	"github.com/hearthd/hearth/nlp"
	"github.com/hearthd/hearth/types"
)

func TestAPI(t *testing.T) { TestingT(t) }

type APISuite struct {
	srv  *hearth.Server
	api  *API
	ts   *httptest.Server
	bk   *nullBroker
	face *fixedFaceEncoder
}

var _ = Suite(&APISuite{})

// nullBroker accepts every write and reports no feeds.
type nullBroker struct {
	mu   sync.Mutex
	sent []types.ActuationMessage
}

func (b *nullBroker) Send(feedKey string, value types.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, types.ActuationMessage{FeedKey: feedKey, Value: value})
	return nil
}

func (b *nullBroker) LastValue(feedKey string) (broker.DataPoint, error) {
	return broker.DataPoint{}, fmt.Errorf("no data for feed %v", feedKey)
}

func (b *nullBroker) AllValues(feedKey string) ([]broker.DataPoint, error) { return nil, nil }
func (b *nullBroker) Feeds() ([]broker.Feed, error)                        { return nil, nil }
func (b *nullBroker) CreateFeed(name, key string) (broker.Feed, error) {
	return broker.Feed{Name: name, Key: key}, nil
}
func (b *nullBroker) DeleteFeed(key string) error { return nil }

// vocabEncoder embeds sentences as word counts over the template vocabulary.
type vocabEncoder struct {
	vocab map[string]int
	dims  int
}

func newVocabEncoder() *vocabEncoder {
	vocab := make(map[string]int)
	for _, t := range nlp.DefaultTemplates {
		for _, word := range strings.Fields(t.Phrase) {
			if _, ok := vocab[word]; !ok {
				vocab[word] = len(vocab)
			}
		}
	}
	return &vocabEncoder{vocab: vocab, dims: len(vocab) + 1}
}

func (e *vocabEncoder) EncodeSentence(ctx context.Context, text string) (types.Embedding, error) {
	vec := make(types.Embedding, e.dims)
	for _, word := range strings.Fields(text) {
		i, ok := e.vocab[word]
		if !ok {
			i = e.dims - 1
		}
		vec[i]++
	}
	return vec, nil
}

type fixedFaceEncoder struct {
	emb types.Embedding
}

func (e *fixedFaceEncoder) EncodeFace(ctx context.Context, image []byte) (types.Embedding, error) {
	return e.emb, nil
}

func (s *APISuite) SetUpTest(c *C) {
	s.bk = &nullBroker{}
	s.face = &fixedFaceEncoder{emb: types.Embedding{1, 0, 0}}

	srv, err := hearth.NewServer("", s.bk, newVocabEncoder(), s.face)
	c.Assert(err, IsNil)
	s.srv = srv

	c.Assert(srv.CreateRoom(types.Room{ID: "room-1", Name: "living room"}), IsNil)
	c.Assert(srv.UpsertDevice(types.Device{
		ID: "dev-light", Name: "Light", Type: types.KindLight, RoomID: "room-1",
		Status: types.StatusOff, Value: types.IntValue(0),
	}), IsNil)
	c.Assert(srv.UpsertDevice(types.Device{
		ID: "dev-temp", Name: "Thermometer", Type: types.KindTemperatureSensor,
		Sensor: true, Value: types.FloatValue(25),
	}), IsNil)

	s.api = New(srv, ":0")
	s.ts = httptest.NewServer(s.api.Handlers())
}

func (s *APISuite) TearDownTest(c *C) {
	s.ts.Close()
	c.Assert(s.srv.HomeDB.Close(), IsNil)
}

func (s *APISuite) get(c *C, path string) (*http.Response, []byte) {
	resp, err := http.Get(s.ts.URL + path)
	c.Assert(err, IsNil)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	c.Assert(err, IsNil)
	return resp, buf.Bytes()
}

func (s *APISuite) do(c *C, method, path string, body interface{}) (*http.Response, []byte) {
	var reader *bytes.Reader
	if body != nil {
		asJSON, err := json.Marshal(body)
		c.Assert(err, IsNil)
		reader = bytes.NewReader(asJSON)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	c.Assert(err, IsNil)
	resp, err := http.DefaultClient.Do(req)
	c.Assert(err, IsNil)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	c.Assert(err, IsNil)
	return resp, buf.Bytes()
}

func (s *APISuite) TestStatus(c *C) {
	resp, _ := s.get(c, "/status")
	c.Check(resp.StatusCode, Equals, http.StatusOK)
}

func (s *APISuite) TestGetDevices(c *C) {
	resp, body := s.get(c, "/devices")
	c.Assert(resp.StatusCode, Equals, http.StatusOK)

	var devices []types.Device
	c.Assert(json.Unmarshal(body, &devices), IsNil)
	c.Assert(devices, HasLen, 2)
}

func (s *APISuite) TestGetDeviceNotFound(c *C) {
	resp, _ := s.get(c, "/devices/nope")
	c.Check(resp.StatusCode, Equals, http.StatusNotFound)
}

func (s *APISuite) TestPatchToggles(c *C) {
	resp, body := s.do(c, "PATCH", "/devices/dev-light", nil)
	c.Assert(resp.StatusCode, Equals, http.StatusOK)

	var dev types.Device
	c.Assert(json.Unmarshal(body, &dev), IsNil)
	c.Check(dev.Status, Equals, types.StatusOn)
}

func (s *APISuite) TestPatchExplicitStatus(c *C) {
	resp, body := s.do(c, "PATCH", "/devices/dev-light", patchRequest{Status: types.StatusOn})
	c.Assert(resp.StatusCode, Equals, http.StatusOK)

	var dev types.Device
	c.Assert(json.Unmarshal(body, &dev), IsNil)
	c.Check(dev.Status, Equals, types.StatusOn)
	c.Check(dev.Value.String(), Equals, "1")
}

func (s *APISuite) TestPatchSensorRejected(c *C) {
	resp, _ := s.do(c, "PATCH", "/devices/dev-temp", nil)
	c.Check(resp.StatusCode, Equals, http.StatusBadRequest)
}

func (s *APISuite) TestVoiceCommand(c *C) {
	resp, body := s.do(c, "POST", "/voices", voiceRequest{Sentence: "bật đèn"})
	c.Assert(resp.StatusCode, Equals, http.StatusOK)

	var vr voiceResponse
	c.Assert(json.Unmarshal(body, &vr), IsNil)
	c.Check(vr.Result.Intent, Equals, "TURN_ON_LIGHT")
	c.Check(vr.Entry.Response, Equals, "TURN_ON_LIGHT")

	dev, err := s.srv.GetDevice("dev-light")
	c.Assert(err, IsNil)
	c.Check(dev.Status, Equals, types.StatusOn)
}

func (s *APISuite) TestVoiceCommandEmpty(c *C) {
	resp, _ := s.do(c, "POST", "/voices", voiceRequest{Sentence: ""})
	c.Check(resp.StatusCode, Equals, http.StatusBadRequest)
}

func (s *APISuite) TestVoiceHistory(c *C) {
	_, _ = s.do(c, "POST", "/voices", voiceRequest{Sentence: "bật đèn"})
	resp, body := s.get(c, "/voices/history")
	c.Assert(resp.StatusCode, Equals, http.StatusOK)

	var entries []types.HistoryEntry
	c.Assert(json.Unmarshal(body, &entries), IsNil)
	c.Assert(entries, HasLen, 1)
	c.Check(entries[0].Request, Equals, "bật đèn")

	resp, _ = s.do(c, "DELETE", "/voices/history", nil)
	c.Check(resp.StatusCode, Equals, http.StatusNoContent)
}

func (s *APISuite) TestVerifyFaceInactiveCamera(c *C) {
	c.Assert(s.srv.UpsertCamera(types.Camera{ID: "cam-1", Name: "Front", RoomID: "room-1", Active: false}), IsNil)
	resp, _ := s.do(c, "POST", "/cameras/cam-1/verifications", imageRequest{Image: "aW1n"})
	c.Check(resp.StatusCode, Equals, http.StatusBadRequest)
}

func (s *APISuite) TestVerifyFaceUnknownCamera(c *C) {
	resp, _ := s.do(c, "POST", "/cameras/nope/verifications", imageRequest{Image: "aW1n"})
	c.Check(resp.StatusCode, Equals, http.StatusNotFound)
}

func (s *APISuite) TestRegisterFace(c *C) {
	resp, body := s.do(c, "POST", "/users/alice/faces", imageRequest{Image: "aW1n"})
	c.Assert(resp.StatusCode, Equals, http.StatusCreated)

	var counts map[string]int
	c.Assert(json.Unmarshal(body, &counts), IsNil)
	c.Check(counts["embeddings"], Equals, 1)
}

func (s *APISuite) TestEnvironmentSnapshot(c *C) {
	resp, body := s.get(c, "/environment")
	c.Assert(resp.StatusCode, Equals, http.StatusOK)

	var readings map[string]types.Value
	c.Assert(json.Unmarshal(body, &readings), IsNil)
	c.Check(readings[types.KindTemperatureSensor], Equals, types.FloatValue(25))
}

func (s *APISuite) TestRoomLifecycle(c *C) {
	resp, body := s.get(c, "/rooms/room-1")
	c.Assert(resp.StatusCode, Equals, http.StatusOK)
	var room types.Room
	c.Assert(json.Unmarshal(body, &room), IsNil)
	c.Check(room.Name, Equals, "living room")

	resp, body = s.do(c, "PUT", "/rooms/room-1", types.Room{Name: "den", Icon: "sofa"})
	c.Assert(resp.StatusCode, Equals, http.StatusOK)
	c.Assert(json.Unmarshal(body, &room), IsNil)
	c.Check(room.Name, Equals, "den")

	resp, _ = s.do(c, "DELETE", "/rooms/room-1", nil)
	c.Check(resp.StatusCode, Equals, http.StatusNoContent)
	resp, _ = s.get(c, "/rooms/room-1")
	c.Check(resp.StatusCode, Equals, http.StatusNotFound)
}

func (s *APISuite) TestRoomNotFound(c *C) {
	resp, _ := s.do(c, "PUT", "/rooms/nope", types.Room{Name: "x"})
	c.Check(resp.StatusCode, Equals, http.StatusNotFound)
	resp, _ = s.do(c, "DELETE", "/rooms/nope", nil)
	c.Check(resp.StatusCode, Equals, http.StatusNotFound)
}

func (s *APISuite) TestCameraToggle(c *C) {
	c.Assert(s.srv.UpsertCamera(types.Camera{ID: "cam-1", Name: "Front", RoomID: "room-1", Active: true}), IsNil)

	resp, body := s.do(c, "PATCH", "/cameras/cam-1", nil)
	c.Assert(resp.StatusCode, Equals, http.StatusOK)
	var cam types.Camera
	c.Assert(json.Unmarshal(body, &cam), IsNil)
	c.Check(cam.Active, Equals, false)

	resp, body = s.do(c, "PATCH", "/cameras/cam-1", nil)
	c.Assert(resp.StatusCode, Equals, http.StatusOK)
	c.Assert(json.Unmarshal(body, &cam), IsNil)
	c.Check(cam.Active, Equals, true)

	resp, _ = s.do(c, "PATCH", "/cameras/nope", nil)
	c.Check(resp.StatusCode, Equals, http.StatusNotFound)
}

func (s *APISuite) TestListUsers(c *C) {
	_, _ = s.do(c, "POST", "/users/alice/faces", imageRequest{Image: "aW1n"})
	_, _ = s.do(c, "POST", "/users/bob/faces", imageRequest{Image: "aW1n"})

	resp, body := s.get(c, "/users")
	c.Assert(resp.StatusCode, Equals, http.StatusOK)
	var users []string
	c.Assert(json.Unmarshal(body, &users), IsNil)
	c.Assert(users, HasLen, 2)
}

func (s *APISuite) TestPutEnvironment(c *C) {
	resp, body := s.do(c, "PUT", "/environment",
		map[string]interface{}{"temperature": 31.5})
	c.Assert(resp.StatusCode, Equals, http.StatusOK)

	var readings map[string]types.Value
	c.Assert(json.Unmarshal(body, &readings), IsNil)
	c.Check(readings[types.KindTemperatureSensor], Equals, types.FloatValue(31.5))

	dev, err := s.srv.GetDevice("dev-temp")
	c.Assert(err, IsNil)
	c.Check(dev.Value, Equals, types.FloatValue(31.5))
}

func (s *APISuite) TestPutEnvironmentUnknownKind(c *C) {
	resp, _ := s.do(c, "PUT", "/environment",
		map[string]interface{}{"pressure": 1013})
	c.Check(resp.StatusCode, Equals, http.StatusBadRequest)
}

func (s *APISuite) TestWebsocketKeepAlive(c *C) {
	s.api.keepAlive = 50 * time.Millisecond
	wsURL := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/environment"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	c.Assert(err, IsNil)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	c.Assert(conn.ReadJSON(&frame), IsNil)
	c.Check(frame["event"], Equals, "Waiting")
	c.Check(frame["message"], Equals, "Nothing changed")
}

func (s *APISuite) TestDevicesWebsocket(c *C) {
	wsURL := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/devices"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	c.Assert(err, IsNil)
	defer conn.Close()

	// Give the server a moment to register the subscription before the
	// state change fires.
	time.Sleep(50 * time.Millisecond)
	_, err = s.srv.ToggleDevice("dev-light")
	c.Assert(err, IsNil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	c.Assert(conn.ReadJSON(&frame), IsNil)
	c.Check(frame["id"], Equals, "dev-light")
	c.Check(frame["status"], Equals, types.StatusOn)
}
