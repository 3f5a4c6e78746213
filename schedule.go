package hearth

import (
	"context"
	"sync"
	"time"

	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/types"
)

// A scheduler owns every outstanding delayed action. Each scheduled action
// runs in its own tracked goroutine; on shutdown the scheduler cancels the
// timers and waits for the goroutines to exit, so no task outlives the
// server that spawned it.
type scheduler struct {
	srv    *Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    log.Logger
}

func newScheduler(srv *Server) *scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &scheduler{
		srv:    srv,
		ctx:    ctx,
		cancel: cancel,
		log:    Log.New("obj", "scheduler", "id", logext.RandId(8)),
	}
}

// schedule defers one action by the given delay. The current device state is
// not captured; the action re-resolves its target when the timer fires, so a
// delayed write always applies to the device as it is then, through the same
// per-device serialization as immediate writes.
func (sc *scheduler) schedule(action types.PendingAction, delay time.Duration) {
	sc.log.Info("scheduling delayed action", "device", action.DeviceKind, "status", action.Status, "delay", delay)
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			if err := sc.srv.applyAction(action, 0); err != nil {
				sc.log.Warn("delayed action failed", "device", action.DeviceKind, "status", action.Status, "err", err)
			}
		case <-sc.ctx.Done():
			sc.log.Debug("delayed action cancelled on shutdown", "device", action.DeviceKind)
		}
	}()
}

// drain cancels all outstanding timers and waits for their goroutines.
func (sc *scheduler) drain() {
	sc.cancel()
	sc.wg.Wait()
}
