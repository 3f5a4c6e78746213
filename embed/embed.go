// Package embed defines the embedding producers the engine depends on: a
// sentence encoder for voice commands and a face encoder for camera frames.
// Both return fixed-length numeric vectors. Implementations are expected to
// front a model that takes time to warm up, so every consumer shares a
// one-time ReadyGate which is set exactly once per process.
package embed

import (
	"context"
	"sync"

	"github.com/hearthd/hearth/logging"
	"github.com/hearthd/hearth/types"
)

// Log is used to log messages for the embed package. Logs are disabled by
// default; use hearth/logging.SetLevelStr() to set log levels for all
// packages.
var Log = logging.Log.New("pkg", "embed")

// A SentenceEncoder turns text into a fixed-length embedding vector.
type SentenceEncoder interface {
	EncodeSentence(ctx context.Context, text string) (types.Embedding, error)
}

// A FaceEncoder turns an image into a fixed-length embedding vector.
type FaceEncoder interface {
	EncodeFace(ctx context.Context, image []byte) (types.Embedding, error)
}

// A ReadyGate is a process-wide, set-once signal that the backing model has
// finished loading. Consumers must Wait before encoding. The gate is never
// reset.
type ReadyGate struct {
	once  sync.Once
	ready chan struct{}
}

// NewReadyGate returns an unset gate.
func NewReadyGate() *ReadyGate {
	return &ReadyGate{ready: make(chan struct{})}
}

// SetReady opens the gate. Calling it more than once is harmless.
func (g *ReadyGate) SetReady() {
	g.once.Do(func() { close(g.ready) })
}

// Wait blocks until the gate is open or the context is cancelled.
func (g *ReadyGate) Wait(ctx context.Context) error {
	select {
	case <-g.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
