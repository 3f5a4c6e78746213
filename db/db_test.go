package db_test

import (
	"testing"

	"github.com/hearthd/hearth/db"
	"github.com/hearthd/hearth/types"
	. "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func TestDB(t *testing.T) { TestingT(t) }

type DBSuite struct {
	hdb *db.HomeDB
}

var _ = Suite(&DBSuite{})

func (s *DBSuite) SetUpTest(c *C) {
	hdb, err := db.Open("") // temporary file
	c.Assert(err, IsNil)
	s.hdb = hdb
}

func (s *DBSuite) TearDownTest(c *C) {
	c.Assert(s.hdb.Close(), IsNil)
}

func (s *DBSuite) TestRoomLifecycle(c *C) {
	room := types.Room{ID: "room-1", Name: "living room", Icon: "sofa"}
	c.Assert(s.hdb.CreateRoom(room), IsNil)

	got, err := s.hdb.GetRoom("room-1")
	c.Assert(err, IsNil)
	c.Check(got, Equals, room)

	room.Name = "den"
	c.Assert(s.hdb.UpdateRoom(room), IsNil)
	got, err = s.hdb.GetRoom("room-1")
	c.Assert(err, IsNil)
	c.Check(got.Name, Equals, "den")

	c.Assert(s.hdb.DeleteRoom("room-1"), IsNil)
	_, err = s.hdb.GetRoom("room-1")
	c.Check(err, Equals, db.ErrNotFound)

	c.Check(s.hdb.UpdateRoom(types.Room{ID: "missing", Name: "x"}), Equals, db.ErrNotFound)
	c.Check(s.hdb.DeleteRoom("missing"), Equals, db.ErrNotFound)
}

func (s *DBSuite) TestDeviceRoundTrip(c *C) {
	dev := types.Device{
		ID:     "feed-1",
		Name:   "Living Room Light",
		Type:   types.KindLight,
		Sensor: false,
		Status: types.StatusOff,
		Value:  types.IntValue(0),
	}
	c.Assert(s.hdb.UpsertDevice(dev), IsNil)

	got, err := s.hdb.GetDeviceByType(types.KindLight)
	c.Assert(err, IsNil)
	c.Check(got.ID, Equals, "feed-1")
	c.Check(got.Status, Equals, types.StatusOff)
	c.Check(got.Value, Equals, types.IntValue(0))

	_, err = s.hdb.GetDeviceByType("nonexistent")
	c.Check(err, Equals, db.ErrNotFound)
}

func (s *DBSuite) TestSaveDeviceStateAtomic(c *C) {
	dev := types.Device{ID: "feed-2", Name: "Fan", Type: types.KindFan, Status: types.StatusOff, Value: types.IntValue(0)}
	c.Assert(s.hdb.UpsertDevice(dev), IsNil)

	c.Assert(s.hdb.SaveDeviceState("feed-2", types.StatusOn, types.IntValue(100)), IsNil)
	got, err := s.hdb.GetDevice("feed-2")
	c.Assert(err, IsNil)
	c.Check(got.Status, Equals, types.StatusOn)
	c.Check(got.Value, Equals, types.IntValue(100))

	c.Check(s.hdb.SaveDeviceState("missing", types.StatusOn, types.IntValue(1)), Equals, db.ErrNotFound)
}

func (s *DBSuite) TestDoorValueKeepsStringForm(c *C) {
	dev := types.Device{ID: "feed-3", Name: "Door", Type: types.KindDoor, Status: types.StatusOff, Value: types.StringValue("OFF")}
	c.Assert(s.hdb.UpsertDevice(dev), IsNil)
	c.Assert(s.hdb.SaveDeviceState("feed-3", types.StatusOn, types.StringValue("ON")), IsNil)

	got, err := s.hdb.GetDeviceByType(types.KindDoor)
	c.Assert(err, IsNil)
	c.Check(got.Value, Equals, types.StringValue("ON"))
}

func (s *DBSuite) TestCameraUsersKeepOrder(c *C) {
	cam := types.Camera{ID: "cam-1", Name: "Front", Active: true, UserIDs: []string{"carol", "alice", "bob"}}
	c.Assert(s.hdb.UpsertCamera(cam), IsNil)

	got, err := s.hdb.GetCamera("cam-1")
	c.Assert(err, IsNil)
	c.Check(got.UserIDs, DeepEquals, []string{"carol", "alice", "bob"})

	got.UserIDs = append(got.UserIDs, "dave")
	c.Assert(s.hdb.UpsertCamera(got), IsNil)
	got, err = s.hdb.GetCamera("cam-1")
	c.Assert(err, IsNil)
	c.Check(got.UserIDs, DeepEquals, []string{"carol", "alice", "bob", "dave"})
}

func (s *DBSuite) TestEmbeddings(c *C) {
	_, err := s.hdb.EmbeddingsForUser("nobody")
	c.Check(err, Equals, db.ErrNotFound)

	c.Assert(s.hdb.AddEmbedding("alice", types.Embedding{1, 2, 3}), IsNil)
	c.Assert(s.hdb.AddEmbedding("alice", types.Embedding{4, 5, 6}), IsNil)

	embs, err := s.hdb.EmbeddingsForUser("alice")
	c.Assert(err, IsNil)
	c.Assert(embs, HasLen, 2)
	c.Check(embs[0], DeepEquals, types.Embedding{1, 2, 3})
	c.Check(embs[1], DeepEquals, types.Embedding{4, 5, 6})

	ids, err := s.hdb.AllUserIDs()
	c.Assert(err, IsNil)
	c.Check(ids, DeepEquals, []string{"alice"})
}

func (s *DBSuite) TestHistory(c *C) {
	entry, err := s.hdb.AddHistory("tắt đèn", "TURN_OFF_LIGHT")
	c.Assert(err, IsNil)
	c.Check(entry.Request, Equals, "tắt đèn")
	c.Check(entry.Response, Equals, "TURN_OFF_LIGHT")

	entries, err := s.hdb.History(0, 10)
	c.Assert(err, IsNil)
	c.Assert(entries, HasLen, 1)

	c.Assert(s.hdb.DeleteHistory(), IsNil)
	entries, err = s.hdb.History(0, 10)
	c.Assert(err, IsNil)
	c.Check(entries, HasLen, 0)
}
