package vision

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"archRenew/internal/llm"
	"archRenew/internal/logging"
	"archRenew/internal/metrics"
	"archRenew/internal/prompts"
)

const (
	analysisMaxTokens   = 500
	analysisTemperature = 0.7
)

var errEmptyImage = errors.New("vision: empty image")

// Analysis is the outcome of a building analysis. Degraded analyses carry the
// fallback text and are never cached.
type Analysis struct {
	Text     string `json:"text"`
	Cached   bool   `json:"cached"`
	Degraded bool   `json:"degraded"`
}

// AnalyzerOptions configures an Analyzer.
type AnalyzerOptions struct {
	Client            llm.Client
	Cache             Cache
	FingerprintPrefix int
	Timeout           time.Duration
	Logger            *zerolog.Logger
	Metrics           *metrics.Metrics
}

// Analyzer describes building photos through a multimodal chat model.
type Analyzer struct {
	client  llm.Client
	cache   Cache
	prefix  int
	timeout time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewAnalyzer constructs an analyzer. A nil cache gets a private unbounded one.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Analyzer{
		client:  opts.Client,
		cache:   cache,
		prefix:  opts.FingerprintPrefix,
		timeout: timeout,
		log:     logging.OrNop(opts.Logger).With().Str("component", "analyzer").Logger(),
		metrics: opts.Metrics,
	}
}

// Fingerprint hashes the first prefix bytes of the image. A prefix of zero or
// less hashes the whole payload. Images sharing a prefix share a fingerprint.
func Fingerprint(image []byte, prefix int) string {
	if prefix > 0 && len(image) > prefix {
		image = image[:prefix]
	}
	sum := blake2b.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Analyze never fails: provider errors degrade to a fixed description.
func (a *Analyzer) Analyze(ctx context.Context, image []byte) Analysis {
	if len(image) == 0 {
		return a.degrade(errEmptyImage)
	}

	key := Fingerprint(image, a.prefix)
	if text, ok := a.cache.Get(key); ok {
		a.metrics.CacheLookup(true)
		a.log.Debug().Str("fingerprint", key[:12]).Msg("using cached building analysis")
		return Analysis{Text: text, Cached: true}
	}
	a.metrics.CacheLookup(false)

	if a.client == nil {
		return a.degrade(llm.ErrMissingCredentials)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	started := time.Now()
	text, err := a.client.ChatCompletion(callCtx, []llm.ChatMessage{{
		Role:   "user",
		Text:   prompts.AnalysisInstruction(),
		Images: []llm.Image{{Data: image, MIMEType: llm.DetectMIME(image)}},
	}}, llm.Options{MaxTokens: analysisMaxTokens, Temperature: analysisTemperature})
	a.metrics.ObserveCall("analysis", started)
	if err != nil {
		return a.degrade(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return a.degrade(errors.New("vision: empty analysis"))
	}

	a.cache.Set(key, text)
	return Analysis{Text: text}
}

func (a *Analyzer) degrade(err error) Analysis {
	a.log.Warn().Err(err).Msg("building analysis failed, using fallback description")
	a.metrics.Degraded("analysis")
	return Analysis{Text: prompts.FallbackAnalysis, Degraded: true}
}
