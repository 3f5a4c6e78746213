package hearth

import (
	"sync"

	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/broker"
	"github.com/hearthd/hearth/types"
)

// An outbox is an unbounded FIFO queue of pending broker writes. Producers
// never block; the single consumer blocks until a message arrives or the
// queue is closed and drained.
type outbox struct {
	mutex  sync.Mutex
	wake   *sync.Cond
	items  []types.ActuationMessage
	closed bool
}

func newOutbox() *outbox {
	q := &outbox{}
	q.wake = sync.NewCond(&q.mutex)
	return q
}

func (q *outbox) push(msg types.ActuationMessage) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, msg)
	q.wake.Signal()
}

// pop blocks until a message is available. It returns ok == false only once
// the queue is closed and every remaining message has been delivered.
func (q *outbox) pop() (types.ActuationMessage, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.wake.Wait()
	}
	if len(q.items) == 0 {
		return types.ActuationMessage{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

func (q *outbox) close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.closed = true
	q.wake.Broadcast()
}

// An actuationWorker is the queue's single consumer. It delivers messages to
// the broker strictly in enqueue order; a failed delivery is logged and the
// message is considered done, so one bad write never wedges the queue.
type actuationWorker struct {
	queue  *outbox
	broker broker.Client
	log    log.Logger
}

func newActuationWorker(queue *outbox, bk broker.Client) *actuationWorker {
	return &actuationWorker{
		queue:  queue,
		broker: bk,
		log:    Log.New("obj", "actuator", "id", logext.RandId(8)),
	}
}

// Serve drains the outbox until it is closed. Run it under a supervisor.
func (w *actuationWorker) Serve() {
	w.log.Debug("actuation worker starting")
	for {
		msg, ok := w.queue.pop()
		if !ok {
			w.log.Debug("actuation worker stopping, queue closed")
			return
		}
		if err := w.broker.Send(msg.FeedKey, msg.Value); err != nil {
			w.log.Error("could not deliver actuation to broker", "feed", msg.FeedKey, "value", msg.Value.String(), "err", err)
			continue
		}
		w.log.Debug("delivered actuation", "feed", msg.FeedKey, "value", msg.Value.String())
	}
}

// Stop closes the outbox; Serve returns after the backlog drains.
func (w *actuationWorker) Stop() {
	w.queue.close()
}
