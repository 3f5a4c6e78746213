package nlp

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	log "gopkg.in/inconshreveable/log15.v2"
	logext "gopkg.in/inconshreveable/log15.v2/ext"

	"github.com/hearthd/hearth/embed"
	"github.com/hearthd/hearth/types"
)

// conditionClause matches the trailing conditional part of an utterance
// ("when/if/at/then-fan" clauses), which is stripped before classification so
// condition text does not pollute the intent signal.
var conditionClause = regexp.MustCompile(`khi .*|nếu .*|lúc .*|quạt .*`)

// A Classification is the result of matching an utterance against the
// configured intent templates.
type Classification struct {
	Sentence        string  `json:"sentence"`
	Intent          string  `json:"intent"`
	MatchedTemplate string  `json:"matched_template"`
	Similarity      float64 `json:"similarity"`
}

// A Classifier compares utterance embeddings against a fixed set of template
// embeddings by cosine similarity. Template embeddings are computed once, on
// first use, and cached for the process lifetime.
//
// The classifier never rejects on low similarity: a wildly unrelated
// utterance still returns its best match. Callers own any confidence floor.
type Classifier struct {
	encoder   embed.SentenceEncoder
	templates []IntentTemplate

	mu       sync.Mutex
	cache    []types.Embedding // indexed like templates
	cacheSet bool

	log log.Logger
}

// NewClassifier builds a classifier over the given templates. A nil template
// slice uses DefaultTemplates.
func NewClassifier(encoder embed.SentenceEncoder, templates []IntentTemplate) *Classifier {
	if templates == nil {
		templates = DefaultTemplates
	}
	return &Classifier{
		encoder:   encoder,
		templates: templates,
		log:       Log.New("obj", "classifier", "id", logext.RandId(8)),
	}
}

// StripCondition removes a trailing conditional clause from the utterance.
func StripCondition(sentence string) string {
	return strings.TrimSpace(conditionClause.ReplaceAllString(sentence, ""))
}

// Classify returns the best-matching template for the utterance. The
// conditional clause is stripped before embedding. Ties between equal
// similarities break by template declaration order.
func (cl *Classifier) Classify(ctx context.Context, sentence string) (Classification, error) {
	if err := cl.initEmbeddings(ctx); err != nil {
		return Classification{}, err
	}

	stripped := StripCondition(sentence)
	emb, err := cl.encoder.EncodeSentence(ctx, stripped)
	if err != nil {
		return Classification{}, fmt.Errorf("could not embed utterance: %v", err)
	}

	best := -1
	bestSim := math.Inf(-1)
	for i, templateEmb := range cl.cache {
		sim := cosineSimilarity(emb, templateEmb)
		if sim > bestSim {
			best = i
			bestSim = sim
		}
	}
	if best < 0 {
		return Classification{}, fmt.Errorf("no templates configured")
	}

	cl.log.Debug("classified utterance", "sentence", sentence, "stripped", stripped,
		"template", cl.templates[best].Phrase, "similarity", bestSim)
	return Classification{
		Sentence:        sentence,
		Intent:          cl.templates[best].Label,
		MatchedTemplate: cl.templates[best].Phrase,
		Similarity:      bestSim,
	}, nil
}

// initEmbeddings lazily computes the template embedding cache. Later calls
// reuse the cached vectors.
func (cl *Classifier) initEmbeddings(ctx context.Context) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.cacheSet {
		return nil
	}
	cache := make([]types.Embedding, len(cl.templates))
	for i, t := range cl.templates {
		emb, err := cl.encoder.EncodeSentence(ctx, t.Phrase)
		if err != nil {
			return fmt.Errorf("could not embed template %q: %v", t.Phrase, err)
		}
		cache[i] = emb
	}
	cl.cache = cache
	cl.cacheSet = true
	cl.log.Debug("template embeddings initialized", "count", len(cache))
	return nil
}

func cosineSimilarity(a, b types.Embedding) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
