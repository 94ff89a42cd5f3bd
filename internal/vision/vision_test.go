package vision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"archRenew/internal/llm"
	"archRenew/internal/metrics"
	"archRenew/internal/prompts"
)

type stubChat struct {
	mu       sync.Mutex
	calls    int
	reply    string
	err      error
	messages []llm.ChatMessage
	opts     llm.Options
}

func (s *stubChat) ChatCompletion(_ context.Context, messages []llm.ChatMessage, opts llm.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.messages = messages
	s.opts = opts
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubChat) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestAnalyzerCachesByFingerprint(t *testing.T) {
	chat := &stubChat{reply: "Art deco office block with spalled concrete."}
	m := metrics.New()
	analyzer := NewAnalyzer(AnalyzerOptions{Client: chat, FingerprintPrefix: 100, Metrics: m})

	image := []byte(strings.Repeat("a", 150))
	first := analyzer.Analyze(context.Background(), image)
	if first.Cached || first.Degraded || first.Text != chat.reply {
		t.Fatalf("first analysis = %+v", first)
	}
	if chat.opts.MaxTokens != 500 || chat.opts.Temperature != 0.7 {
		t.Fatalf("options = %+v", chat.opts)
	}
	if len(chat.messages) != 1 || len(chat.messages[0].Images) != 1 || chat.messages[0].Text != prompts.AnalysisInstruction() {
		t.Fatalf("unexpected request: %+v", chat.messages)
	}

	// Same first 100 bytes, different tail: served from cache.
	second := analyzer.Analyze(context.Background(), []byte(strings.Repeat("a", 100)+"different tail"))
	if !second.Cached || second.Text != chat.reply {
		t.Fatalf("second analysis = %+v", second)
	}
	if chat.callCount() != 1 {
		t.Fatalf("remote calls = %d, want 1", chat.callCount())
	}
	if got := testutil.ToFloat64(m.AnalysisCacheHits); got != 1 {
		t.Fatalf("cache hits = %v", got)
	}
}

func TestAnalyzerFallbackIsNotCached(t *testing.T) {
	chat := &stubChat{err: errors.New("connection refused")}
	analyzer := NewAnalyzer(AnalyzerOptions{Client: chat})

	image := []byte("jpeg bytes")
	for i := 0; i < 2; i++ {
		got := analyzer.Analyze(context.Background(), image)
		if !got.Degraded || got.Cached || got.Text != prompts.FallbackAnalysis {
			t.Fatalf("attempt %d: %+v", i, got)
		}
	}
	if chat.callCount() != 2 {
		t.Fatalf("remote calls = %d, want 2 (failures must not be cached)", chat.callCount())
	}
}

func TestAnalyzerDegradesWithoutRemoteCall(t *testing.T) {
	t.Run("empty image", func(t *testing.T) {
		chat := &stubChat{reply: "x"}
		got := NewAnalyzer(AnalyzerOptions{Client: chat}).Analyze(context.Background(), nil)
		if !got.Degraded || chat.callCount() != 0 {
			t.Fatalf("got %+v after %d calls", got, chat.callCount())
		}
	})
	t.Run("no client", func(t *testing.T) {
		got := NewAnalyzer(AnalyzerOptions{}).Analyze(context.Background(), []byte("img"))
		if !got.Degraded || got.Text != prompts.FallbackAnalysis {
			t.Fatalf("got %+v", got)
		}
	})
	t.Run("blank reply", func(t *testing.T) {
		got := NewAnalyzer(AnalyzerOptions{Client: &stubChat{reply: "   "}}).Analyze(context.Background(), []byte("img"))
		if !got.Degraded {
			t.Fatalf("got %+v", got)
		}
	})
}

func TestFingerprint(t *testing.T) {
	a := []byte(strings.Repeat("x", 100) + "1")
	b := []byte(strings.Repeat("x", 100) + "2")
	if Fingerprint(a, 100) != Fingerprint(b, 100) {
		t.Fatal("shared prefix should collide")
	}
	if Fingerprint(a, 0) == Fingerprint(b, 0) {
		t.Fatal("whole-payload fingerprints should differ")
	}
	if len(Fingerprint(a, 100)) != 64 {
		t.Fatalf("fingerprint length = %d", len(Fingerprint(a, 100)))
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewMemoryCache(2)
	cache.Set("a", "1")
	cache.Set("b", "2")
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("a missing")
	}
	cache.Set("c", "3")
	if _, ok := cache.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := cache.Get("a"); !ok || v != "1" {
		t.Fatalf("a = %q, %v", v, ok)
	}
	if cache.Len() != 2 {
		t.Fatalf("len = %d", cache.Len())
	}
}

func TestPlannerUsesPlanPrompt(t *testing.T) {
	chat := &stubChat{reply: "1. Repoint brickwork\n2. Lime mortar"}
	planner := NewPlanner(PlannerOptions{Client: chat})

	plan, err := planner.Plan(context.Background(), "Use a Modern renovation style", "Brick mill")
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if plan != chat.reply {
		t.Fatalf("plan = %q", plan)
	}
	if chat.opts.MaxTokens != 1500 || chat.opts.Temperature != 0.7 {
		t.Fatalf("options = %+v", chat.opts)
	}
	text := chat.messages[0].Text
	if !strings.Contains(text, "Brick mill") || !strings.Contains(text, "Use a Modern renovation style") {
		t.Fatalf("plan prompt missing inputs: %s", text)
	}
}

func TestPlannerPropagatesFailure(t *testing.T) {
	cases := map[string]*stubChat{
		"provider error": {err: errors.New("503")},
		"empty answer":   {reply: "  "},
	}
	for name, chat := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewPlanner(PlannerOptions{Client: chat}).Plan(context.Background(), "p", "a"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := NewPlanner(PlannerOptions{}).Plan(context.Background(), "p", "a"); !errors.Is(err, llm.ErrMissingCredentials) {
		t.Fatalf("err = %v", err)
	}
}
