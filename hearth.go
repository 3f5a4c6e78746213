// Package hearth - a home-automation decision and actuation engine.
//
// A hearth Server turns two kinds of intent signals - spoken commands and
// face-match verdicts - into device state changes. It resolves a raw signal
// into a normalized action list, evaluates optional gating conditions
// (sensor thresholds or time delays), applies per-device-type transition
// rules, and serializes every outbound broker write through a single-writer
// queue while fanning state changes out to live subscribers.
package hearth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thejerf/suture"
	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/auth"
	"github.com/hearthd/hearth/broker"
	"github.com/hearthd/hearth/db"
	"github.com/hearthd/hearth/embed"
	"github.com/hearthd/hearth/faceid"
	"github.com/hearthd/hearth/lib"
	"github.com/hearthd/hearth/logging"
	"github.com/hearthd/hearth/nlp"
	"github.com/hearthd/hearth/notif"
	"github.com/hearthd/hearth/types"
)

// A suggested default database name.
const DefaultDBFilepath = "hearth.db"

// NoActionTaken is recorded in place of the resolved intent when a gating
// condition was evaluated and not met.
const NoActionTaken = "NO ACTION TAKEN DUE TO CONDITION NOT MET"

const environmentPollInterval = 2 * time.Second

// Engine error taxonomy. The transport layer maps these onto client or
// server errors; everything else is internal.
var (
	// ErrNotFound indicates a missing user, device, sensor or camera row.
	ErrNotFound = db.ErrNotFound
	// ErrInvalidInput indicates malformed input rejected before any stage ran.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEncodingFailure indicates input that could not be turned into a
	// usable embedding vector.
	ErrEncodingFailure = errors.New("encoding failure")
)

// Log is used to log messages for the hearth package. Logs are disabled by
// default; use hearth/logging.SetLevelStr() to set log levels for all
// packages, or Log.SetHandler() to set a custom handler for this package.
var Log = logging.Log.New("pkg", "hearth")

// SetLogLevel is a convenient wrapper to hearth/logging.SetLevelStr().
// Use it to quickly set the log level for all loggers in this package.
func SetLogLevel(lvlstr string) { logging.SetLevelStr(lvlstr) }

// Server maintains the state of hearth devices and runs the command decision
// pipeline. Always initialize Servers with a call to NewServer().
type Server struct {
	// HomeDB provides direct access to the underlying sqlite database
	// through Jason Moiron's wonderful sqlx API (see: github.com/jmoiron/sqlx)
	*db.HomeDB

	auth.Authorizor // Provides login/authorize methods
	notif.Provider  // Provides notification pub/sub methods
	notif.Receiver  // Adds methods to post notifications

	broker     broker.Client
	classifier *nlp.Classifier
	verifier   *faceid.Verifier
	faces      embed.FaceEncoder

	queue   *outbox
	worker  *actuationWorker
	watcher *envWatcher
	locks   *lib.KeyedMutex
	sched   *scheduler

	stop    chan struct{}
	stopped chan struct{}
	log     log.Logger
}

// NewServer constructs a new hearth Server over the database at dbpath
// (created if missing; empty means a temporary file). The broker client,
// sentence encoder and face encoder are external collaborators, injected
// here rather than looked up from ambient state. Be sure to start the Server
// with Serve().
func NewServer(dbpath string, bk broker.Client, sentences embed.SentenceEncoder, faces embed.FaceEncoder) (*Server, error) {
	newDB, err := db.Open(dbpath)
	if err != nil {
		return nil, fmt.Errorf("could not open hearth db: %v", err)
	}
	authorizor := auth.New()
	notifier := notif.New(authorizor)
	queue := newOutbox()

	s := &Server{
		HomeDB: newDB,

		Authorizor: authorizor,
		Provider:   notifier,
		Receiver:   notifier,

		broker:     bk,
		classifier: nlp.NewClassifier(sentences, nil),
		verifier:   faceid.NewVerifier(),
		faces:      faces,

		queue: queue,
		locks: lib.NewKeyedMutex(),

		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     Log.New("obj", "server", "id", logext.RandId(8)),
	}
	s.worker = newActuationWorker(queue, bk)
	s.watcher = newEnvWatcher(s, environmentPollInterval)
	s.sched = newScheduler(s)
	return s, nil
}

// SetVerificationThresholds overrides the face verification thresholds.
func (s *Server) SetVerificationThresholds(optimal, confidence float64) {
	s.verifier.OptimalThreshold = optimal
	s.verifier.ConfidenceThreshold = confidence
}

// Serve starts running the hearth server. Most of the time you'll want to
// call it in a goroutine, or as a Suture Service (see github.com/thejerf/suture).
func (s *Server) Serve() {
	supervisor := suture.NewSimple("hearth server")
	supervisor.Add(s.worker)
	supervisor.Add(s.watcher)
	supervisor.ServeBackground()

	<-s.stop
	s.log.Debug("hearth server stopping due to stop signal")
	supervisor.Stop()
	s.sched.drain()
	if err := s.HomeDB.Close(); err != nil {
		s.log.Crit("could not gracefully close hearth database", "err", err)
	}
	s.stopped <- struct{}{}
}

// Stop stops the Server (does not block).
func (s *Server) Stop() {
	s.stop <- struct{}{}
}

// StopAndWait stops the hearth server and waits for it to complete.
func (s *Server) StopAndWait(timeout time.Duration) error {
	s.Stop()
	select {
	case <-s.stopped:
		return nil
	case <-time.NewTimer(timeout).C:
		return fmt.Errorf("timed out after %v", timeout)
	}
}

// A VoiceResult is the engine's reading of one utterance: the classified
// intent plus an optional extracted condition.
type VoiceResult struct {
	Sentence        string           `json:"sentence"`
	Intent          string           `json:"intent"`
	MatchedTemplate string           `json:"matched_template"`
	Similarity      float64          `json:"similarity"`
	Condition       *types.Condition `json:"condition,omitempty"`
}

// ResolveVoiceCommand runs the analysis half of the voice pipeline: condition
// extraction over the raw utterance and intent classification over the
// utterance with its conditional clause stripped. Empty input is rejected
// before any stage runs.
func (s *Server) ResolveVoiceCommand(ctx context.Context, sentence string) (VoiceResult, error) {
	if strings.TrimSpace(sentence) == "" {
		return VoiceResult{}, fmt.Errorf("%w: voice command cannot be empty", ErrInvalidInput)
	}
	condition := nlp.ExtractCondition(sentence)
	cls, err := s.classifier.Classify(ctx, sentence)
	if err != nil {
		return VoiceResult{}, fmt.Errorf("could not classify %q: %v", sentence, err)
	}
	return VoiceResult{
		Sentence:        sentence,
		Intent:          cls.Intent,
		MatchedTemplate: cls.MatchedTemplate,
		Similarity:      cls.Similarity,
		Condition:       condition,
	}, nil
}

// HandleVoiceCommand runs the full pipeline for one utterance: resolve,
// expand into actions, gate, actuate, and record the outcome in the voice
// history. It returns the history entry and the resolution.
func (s *Server) HandleVoiceCommand(ctx context.Context, sentence string) (types.HistoryEntry, VoiceResult, error) {
	result, err := s.ResolveVoiceCommand(ctx, sentence)
	if err != nil {
		return types.HistoryEntry{}, VoiceResult{}, err
	}
	actions := ResolveActions(result.Intent)
	recorded, err := s.ExecuteActions(ctx, result.Intent, actions, result.Condition)
	if err != nil {
		return types.HistoryEntry{}, result, err
	}
	entry, err := s.AddHistory(sentence, recorded)
	if err != nil {
		return types.HistoryEntry{}, result, fmt.Errorf("could not record history: %v", err)
	}
	s.log.Info("handled voice command", "request", sentence, "response", recorded)
	return entry, result, nil
}

// ExecuteActions evaluates the gating condition and, if confirmed, applies
// every pending action in order. Time-gated actions are handed to the
// delayed scheduling path and never executed inline. The returned label is
// what gets recorded: the intent label, or the no-action marker when the
// condition was not met.
func (s *Server) ExecuteActions(ctx context.Context, intentLabel string, actions []types.PendingAction, condition *types.Condition) (string, error) {
	gate, err := s.evaluateGate(condition)
	if err != nil {
		return "", err
	}
	if !gate.confirm {
		s.log.Info("condition not met, skipping actions", "intent", intentLabel, "condition", condition)
		return NoActionTaken, nil
	}

	if gate.delay > 0 {
		for _, action := range actions {
			s.sched.schedule(action, gate.delay)
		}
		return intentLabel, nil
	}

	for _, action := range actions {
		if err := s.applyAction(action, gate.fanSpeed); err != nil {
			return "", err
		}
	}
	return intentLabel, nil
}

// applyAction mutates one device (or the camera) and pushes the effects out:
// a broker write through the actuation queue and a notification to every
// subscriber. The device's row is serialized on its type key, so concurrent
// immediate and delayed writes never interleave.
func (s *Server) applyAction(action types.PendingAction, fanSpeed float64) error {
	if action.DeviceKind == types.KindCamera {
		return s.applyCameraAction(action)
	}

	s.locks.Lock(action.DeviceKind)
	defer s.locks.Unlock(action.DeviceKind)

	dev, err := s.GetDeviceByType(action.DeviceKind)
	if err != nil {
		return fmt.Errorf("device %v: %w", action.DeviceKind, err)
	}
	dev.Status = action.Status
	dev.Value = actionValue(action.DeviceKind, action.Status, fanSpeed)
	if err := s.SaveDeviceState(dev.ID, dev.Status, dev.Value); err != nil {
		return fmt.Errorf("could not save state for %v: %v", action.DeviceKind, err)
	}

	s.EnqueueActuation(dev.Type, dev.Value)
	s.PostDeviceStatus(dev)
	s.PostDeviceValue(dev)
	s.log.Info("device actuated", "device", action.DeviceKind, "status", dev.Status, "value", dev.Value.String())
	return nil
}

// applyCameraAction flips the camera's active flag. Cameras have no broker
// feed; the flag only gates face verification.
func (s *Server) applyCameraAction(action types.PendingAction) error {
	cam, err := s.FirstCamera()
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := s.SetCameraActive(cam.ID, action.Status == types.StatusOn); err != nil {
		return fmt.Errorf("could not set camera active: %v", err)
	}
	s.log.Info("camera switched", "camera", cam.ID, "active", action.Status == types.StatusOn)
	return nil
}

// EnqueueActuation places one outbound broker write on the single-writer
// queue. It never blocks; delivery order is enqueue order.
func (s *Server) EnqueueActuation(feedKey string, value types.Value) {
	s.queue.push(types.ActuationMessage{FeedKey: feedKey, Value: value})
}

// VerifyIdentity scores a probe embedding against a user's enrolled
// embeddings. An unenrolled user yields ErrNotFound.
func (s *Server) VerifyIdentity(ctx context.Context, userID string, probe types.Embedding) (faceid.Verdict, error) {
	stored, err := s.EmbeddingsForUser(userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return faceid.Verdict{}, fmt.Errorf("user %q has no registered embeddings: %w", userID, ErrNotFound)
		}
		return faceid.Verdict{}, err
	}
	return s.verifier.Verify(userID, probe, stored), nil
}

// VerifyFace encodes a probe image and verifies it against every user
// registered on the camera, in registration order. On the first positive
// verdict the room's door is opened (unless already open) and the verdict is
// returned. A negative verdict carries no user id.
func (s *Server) VerifyFace(ctx context.Context, cameraID string, image []byte) (faceid.Verdict, error) {
	cam, err := s.GetCamera(cameraID)
	if err != nil {
		return faceid.Verdict{}, fmt.Errorf("camera %v: %w", cameraID, err)
	}
	if !cam.Active {
		return faceid.Verdict{}, fmt.Errorf("%w: camera %v is not active", ErrInvalidInput, cameraID)
	}
	if len(image) == 0 {
		return faceid.Verdict{}, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	probe, err := s.faces.EncodeFace(ctx, image)
	if err != nil {
		return faceid.Verdict{}, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}

	for _, userID := range cam.UserIDs {
		verdict, err := s.VerifyIdentity(ctx, userID, probe)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return faceid.Verdict{}, err
		}
		if verdict.IsMatch {
			if err := s.openDoorForVerifiedUser(); err != nil {
				return verdict, err
			}
			return verdict, nil
		}
	}
	return faceid.Verdict{}, nil
}

// openDoorForVerifiedUser maps a positive identity verdict to a single
// door-open action, skipping the write when the door is already open.
func (s *Server) openDoorForVerifiedUser() error {
	s.locks.Lock(types.KindDoor)
	defer s.locks.Unlock(types.KindDoor)

	door, err := s.GetDeviceByType(types.KindDoor)
	if err != nil {
		return fmt.Errorf("door: %w", err)
	}
	if door.Status == types.StatusOn {
		s.log.Debug("door is already open", "door", door.ID)
		return nil
	}
	door.Status = types.StatusOn
	door.Value = actionValue(types.KindDoor, types.StatusOn, 0)
	if err := s.SaveDeviceState(door.ID, door.Status, door.Value); err != nil {
		return fmt.Errorf("could not save door state: %v", err)
	}
	s.EnqueueActuation(door.Type, door.Value)
	s.PostDeviceStatus(door)
	s.PostDeviceValue(door)
	s.log.Info("door opened for verified user", "door", door.ID)
	return nil
}

// RegisterFace encodes an enrollment image and appends it to the user's
// embedding list.
func (s *Server) RegisterFace(ctx context.Context, userID string, image []byte) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id cannot be empty", ErrInvalidInput)
	}
	if len(image) == 0 {
		return 0, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	emb, err := s.faces.EncodeFace(ctx, image)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}
	if err := s.AddEmbedding(userID, emb); err != nil {
		return 0, fmt.Errorf("could not save embedding: %v", err)
	}
	stored, err := s.EmbeddingsForUser(userID)
	if err != nil {
		return 0, err
	}
	return len(stored), nil
}

// SetDeviceStatus flips a non-sensor device to the requested status,
// deriving the value from the per-kind mapping (an explicit speed applies to
// fans). Used by the transport layer's toggle endpoint.
func (s *Server) SetDeviceStatus(id, status string, speed float64) (types.Device, error) {
	return s.transitionDevice(id, func(types.Device) string { return status }, speed)
}

// ToggleDevice flips a device between on and off. With no explicit speed a
// fan derives its value from the flip: on is full speed, off is stopped.
func (s *Server) ToggleDevice(id string) (types.Device, error) {
	return s.transitionDevice(id, func(dev types.Device) string {
		if dev.Status == types.StatusOn {
			return types.StatusOff
		}
		return types.StatusOn
	}, 0)
}

// transitionDevice applies a status transition under the device's type lock.
// The current row is re-read inside the critical section and decide picks
// the next status from it, so concurrent transitions on the same device
// serialize instead of both acting on the same stale read.
func (s *Server) transitionDevice(id string, decide func(types.Device) string, speed float64) (types.Device, error) {
	dev, err := s.GetDevice(id)
	if err != nil {
		return types.Device{}, err
	}
	if dev.Sensor {
		return types.Device{}, fmt.Errorf("%w: device %v is a sensor", ErrInvalidInput, id)
	}

	s.locks.Lock(dev.Type)
	defer s.locks.Unlock(dev.Type)

	dev, err = s.GetDevice(id)
	if err != nil {
		return types.Device{}, err
	}
	dev.Status = decide(dev)
	dev.Value = actionValue(dev.Type, dev.Status, speed)
	if err := s.SaveDeviceState(dev.ID, dev.Status, dev.Value); err != nil {
		return types.Device{}, err
	}
	s.EnqueueActuation(dev.Type, dev.Value)
	s.PostDeviceStatus(dev)
	s.PostDeviceValue(dev)
	return dev, nil
}

// SetEnvironmentReading force-writes a sensor reading: the value goes out to
// the sensor's broker feed through the actuation queue, the device row is
// updated, and environment subscribers are notified. Intended for testing
// condition gates without physical sensors.
func (s *Server) SetEnvironmentReading(kind string, value types.Value) (types.Device, error) {
	devType, ok := sensorFeeds[kind]
	if !ok {
		return types.Device{}, fmt.Errorf("%w: unknown sensor kind %q", ErrInvalidInput, kind)
	}
	dev, err := s.GetDeviceByType(devType)
	if err != nil {
		return types.Device{}, fmt.Errorf("sensor %v: %w", devType, err)
	}
	if err := s.SaveDeviceState(dev.ID, dev.Status, value); err != nil {
		return types.Device{}, fmt.Errorf("could not persist sensor reading: %v", err)
	}
	dev.Value = value
	s.EnqueueActuation(dev.Type, value)
	s.PostEnvironment(kind, value)
	s.log.Info("environment reading set", "sensor", kind, "value", value.String())
	return dev, nil
}

// ToggleCamera flips a camera's active flag.
func (s *Server) ToggleCamera(id string) (types.Camera, error) {
	cam, err := s.GetCamera(id)
	if err != nil {
		return types.Camera{}, fmt.Errorf("camera %v: %w", id, err)
	}
	cam.Active = !cam.Active
	if err := s.SetCameraActive(cam.ID, cam.Active); err != nil {
		return types.Camera{}, fmt.Errorf("could not set camera active: %v", err)
	}
	s.log.Info("camera toggled", "camera", cam.ID, "active", cam.Active)
	return cam, nil
}

// SyncFromBroker seeds the device table from the broker's feed list,
// classifying each feed as sensor or actuator by its key and deriving
// actuator status from the last retained value.
func (s *Server) SyncFromBroker(roomID string) error {
	feeds, err := s.broker.Feeds()
	if err != nil {
		return fmt.Errorf("could not list broker feeds: %v", err)
	}
	for _, feed := range feeds {
		dev := types.Device{
			ID:     feed.ID,
			Name:   feed.Name,
			Type:   feed.Key,
			Sensor: types.IsSensorType(feed.Key),
		}
		if point, err := s.broker.LastValue(feed.Key); err == nil {
			dev.Value = point.Value
		} else {
			s.log.Warn("could not fetch last value for feed", "feed", feed.Key, "err", err)
		}
		if !dev.Sensor {
			dev.RoomID = roomID
			if dev.Value.Positive() {
				dev.Status = types.StatusOn
			} else {
				dev.Status = types.StatusOff
			}
		}
		if err := s.UpsertDevice(dev); err != nil {
			return fmt.Errorf("could not upsert device for feed %v: %v", feed.Key, err)
		}
	}
	s.log.Info("synced devices from broker", "feeds", len(feeds))
	return nil
}
