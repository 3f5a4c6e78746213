package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/types"
)

// An HTTPEncoder encodes sentences and faces by calling an inference sidecar
// over HTTP. The sidecar owns the actual models; the encoder only waits for
// the shared ReadyGate and moves vectors around.
type HTTPEncoder struct {
	baseURL string
	client  *http.Client
	gate    *ReadyGate
	log     log.Logger
}

// NewHTTPEncoder returns an encoder talking to the inference service at
// baseURL. The gate must be opened (usually by the service's health probe)
// before any encode call will proceed.
func NewHTTPEncoder(baseURL string, gate *ReadyGate) *HTTPEncoder {
	return &HTTPEncoder{
		baseURL: baseURL,
		client:  http.DefaultClient,
		gate:    gate,
		log:     Log.New("obj", "http_encoder", "id", logext.RandId(8)),
	}
}

type encodeRequest struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"` // base64
}

type encodeResponse struct {
	Vector []float64 `json:"vector"`
}

// EncodeSentence implements SentenceEncoder.
func (e *HTTPEncoder) EncodeSentence(ctx context.Context, text string) (types.Embedding, error) {
	if err := e.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for model: %v", err)
	}
	return e.post(ctx, "/encode/sentence", encodeRequest{Text: text})
}

// EncodeFace implements FaceEncoder.
func (e *HTTPEncoder) EncodeFace(ctx context.Context, image []byte) (types.Embedding, error) {
	if err := e.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for model: %v", err)
	}
	return e.post(ctx, "/encode/face", encodeRequest{Image: base64.StdEncoding.EncodeToString(image)})
}

func (e *HTTPEncoder) post(ctx context.Context, path string, body encodeRequest) (types.Embedding, error) {
	asJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("could not marshal encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+path, bytes.NewReader(asJSON))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("encode request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.log.Warn("encoder returned non-OK status", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("encoder returned status %v", resp.StatusCode)
	}

	var decoded encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("could not decode encoder response: %v", err)
	}
	if len(decoded.Vector) == 0 {
		return nil, fmt.Errorf("encoder returned an empty vector")
	}
	return types.Embedding(decoded.Vector), nil
}
