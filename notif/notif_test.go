package notif_test

import (
	"testing"

	"github.com/hearthd/hearth/auth"
	"github.com/hearthd/hearth/notif"
	"github.com/hearthd/hearth/types"
	. "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func TestNotif(t *testing.T) { TestingT(t) }

type NotifSuite struct{}

var _ = Suite(&NotifSuite{})

func (s *NotifSuite) TestUnfilteredListenerSeesEverything(c *C) {
	n := notif.New(auth.New())
	token := auth.New().Login()
	listener := n.Listen(token)
	c.Assert(listener, NotNil)

	dev := types.Device{ID: "d1", Type: types.KindLight, Status: types.StatusOn, Value: types.IntValue(1)}
	n.PostDeviceStatus(dev)
	n.PostEnvironment(types.SensorTemperature, types.FloatValue(28))

	got := <-listener
	status, ok := got.(notif.DeviceNotification)
	c.Assert(ok, Equals, true)
	c.Check(status.Event(), Equals, "device:status")
	c.Check(status.DeviceType, Equals, types.KindLight)

	got = <-listener
	env, ok := got.(notif.EnvironmentNotification)
	c.Assert(ok, Equals, true)
	c.Check(env.Event(), Equals, "environment:temperature")
}

func (s *NotifSuite) TestDeviceTypeFilter(c *C) {
	n := notif.New(auth.New())
	token := auth.New().Login()
	listener := n.Listen(token, notif.DeviceFilter{Type: types.KindFan})

	n.PostDeviceStatus(types.Device{ID: "d1", Type: types.KindLight, Status: types.StatusOn})
	n.PostDeviceStatus(types.Device{ID: "d2", Type: types.KindFan, Status: types.StatusOn})

	got := (<-listener).(notif.DeviceNotification)
	c.Check(got.DeviceType, Equals, types.KindFan)
	c.Check(len(listener), Equals, 0)
}

func (s *NotifSuite) TestEnvironmentFilterIgnoresDevices(c *C) {
	n := notif.New(auth.New())
	token := auth.New().Login()
	listener := n.Listen(token, notif.EnvironmentFilter{})

	n.PostDeviceValue(types.Device{ID: "d1", Type: types.KindLight})
	n.PostEnvironment(types.SensorHumidity, types.IntValue(70))

	got := (<-listener).(notif.EnvironmentNotification)
	c.Check(got.Kind, Equals, types.SensorHumidity)
	c.Check(len(listener), Equals, 0)
}

func (s *NotifSuite) TestStringFilter(c *C) {
	n := notif.New(auth.New())
	token := auth.New().Login()
	listener := n.Listen(token, "devices")

	n.PostDeviceStatus(types.Device{ID: "d1", Type: types.KindDoor, Status: types.StatusOn})
	got := (<-listener).(notif.DeviceNotification)
	c.Check(got.DeviceID, Equals, "d1")
}

func (s *NotifSuite) TestUnlistenStopsDelivery(c *C) {
	n := notif.New(auth.New())
	token := auth.New().Login()
	listener := n.Listen(token)
	n.Unlisten(listener)

	n.PostDeviceStatus(types.Device{ID: "d1", Type: types.KindLight})
	c.Check(len(listener), Equals, 0)
}

func (s *NotifSuite) TestRegistrationOrder(c *C) {
	n := notif.New(auth.New())
	a := auth.New()
	first := n.Listen(a.Login())
	second := n.Listen(a.Login())

	n.PostDeviceStatus(types.Device{ID: "d1", Type: types.KindLight})
	// Both receive synchronously before the post returns.
	c.Check(len(first), Equals, 1)
	c.Check(len(second), Equals, 1)
}
