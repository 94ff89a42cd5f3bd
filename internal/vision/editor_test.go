package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/protobuf/types/known/structpb"

	"archRenew/internal/config"
	"archRenew/internal/llm"
	"archRenew/internal/metrics"
)

type scriptedBackend struct {
	mu      sync.Mutex
	results []func() ([]byte, error)
	calls   []time.Time
	prompts []string
}

func (b *scriptedBackend) EditOnce(_ context.Context, _ []byte, prompt string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := len(b.calls)
	b.calls = append(b.calls, time.Now())
	b.prompts = append(b.prompts, prompt)
	if idx >= len(b.results) {
		return nil, errors.New("unexpected call")
	}
	return b.results[idx]()
}

func ok(data string) func() ([]byte, error) {
	return func() ([]byte, error) { return []byte(data), nil }
}

func fail(err error) func() ([]byte, error) {
	return func() ([]byte, error) { return nil, err }
}

var blocked = &EditError{Status: http.StatusBadRequest, Code: CodeModerationBlocked, Message: "blocked"}

func TestEditorSuccessFirstTry(t *testing.T) {
	backend := &scriptedBackend{results: []func() ([]byte, error){ok("restored")}}
	editor := NewEditor(EditorOptions{Backend: backend})

	result := editor.Edit(context.Background(), []byte("original"), "Repair the cornice")
	if !result.Edited || string(result.Image) != "restored" || result.Attempts != 1 || result.Err != nil {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(backend.prompts[0], "STYLE SPECIFICATIONS: Repair the cornice") {
		t.Fatalf("prompt missing plan: %s", backend.prompts[0])
	}
}

func TestEditorRetriesModerationBlockOnceAfterDelay(t *testing.T) {
	backend := &scriptedBackend{results: []func() ([]byte, error){fail(blocked), ok("restored")}}
	m := metrics.New()
	editor := NewEditor(EditorOptions{Backend: backend, RetryDelay: 50 * time.Millisecond, Metrics: m})

	result := editor.Edit(context.Background(), []byte("original"), "plan")
	if !result.Edited || string(result.Image) != "restored" || result.Attempts != 2 {
		t.Fatalf("result = %+v", result)
	}
	if gap := backend.calls[1].Sub(backend.calls[0]); gap < 50*time.Millisecond {
		t.Fatalf("retry gap = %v, want >= 50ms", gap)
	}
	if backend.prompts[0] != backend.prompts[1] {
		t.Fatal("retry must resend the identical prompt")
	}
	if got := testutil.ToFloat64(m.ModerationRetries); got != 1 {
		t.Fatalf("moderation retries = %v", got)
	}
}

func TestEditorFallsBackToOriginal(t *testing.T) {
	cases := []struct {
		name     string
		results  []func() ([]byte, error)
		attempts int
	}{
		{name: "blocked twice", results: []func() ([]byte, error){fail(blocked), fail(blocked)}, attempts: 2},
		{name: "other provider error", results: []func() ([]byte, error){fail(&EditError{Status: 500, Code: "server_error"})}, attempts: 1},
		{name: "network error", results: []func() ([]byte, error){fail(errors.New("dial tcp: timeout"))}, attempts: 1},
		{name: "empty image", results: []func() ([]byte, error){ok("")}, attempts: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &scriptedBackend{results: tc.results}
			editor := NewEditor(EditorOptions{Backend: backend, RetryDelay: time.Millisecond})

			original := []byte("original")
			result := editor.Edit(context.Background(), original, "plan")
			if result.Edited || !bytes.Equal(result.Image, original) {
				t.Fatalf("expected original image, got %+v", result)
			}
			if result.Attempts != tc.attempts || len(backend.calls) != tc.attempts {
				t.Fatalf("attempts = %d, calls = %d, want %d", result.Attempts, len(backend.calls), tc.attempts)
			}
			if result.Err == nil {
				t.Fatal("expected last error to be reported")
			}
		})
	}
}

type panickingBackend struct{}

func (panickingBackend) EditOnce(context.Context, []byte, string) ([]byte, error) {
	panic("nil map write")
}

func TestEditorRecoversFromBackendPanic(t *testing.T) {
	result := NewEditor(EditorOptions{Backend: panickingBackend{}}).Edit(context.Background(), []byte("orig"), "plan")
	if result.Edited || string(result.Image) != "orig" || result.Err == nil {
		t.Fatalf("result = %+v", result)
	}
}

func TestEditorRetryHonoursCancellation(t *testing.T) {
	backend := &scriptedBackend{results: []func() ([]byte, error){fail(blocked), ok("restored")}}
	editor := NewEditor(EditorOptions{Backend: backend, RetryDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result := editor.Edit(ctx, []byte("orig"), "plan")
	if result.Edited || len(backend.calls) != 1 {
		t.Fatalf("result = %+v after %d calls", result, len(backend.calls))
	}
}

func TestIsModerationBlocked(t *testing.T) {
	if !IsModerationBlocked(blocked) {
		t.Fatal("direct error not detected")
	}
	wrapped := errors.Join(errors.New("context"), blocked)
	if !IsModerationBlocked(wrapped) {
		t.Fatal("wrapped error not detected")
	}
	if IsModerationBlocked(&EditError{Code: "content_filter"}) || IsModerationBlocked(nil) {
		t.Fatal("false positive")
	}
}

func TestAzureEditBackendMultipartRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/gpt-image-1/images/edits" || r.URL.Query().Get("api-version") != "2025-04-01-preview" {
			t.Errorf("unexpected url %s", r.URL)
		}
		if r.Header.Get("api-key") != "k" {
			t.Errorf("missing api-key header")
		}
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("content type: %v", err)
			return
		}
		reader := multipart.NewReader(r.Body, params["boundary"])
		fields := map[string]string{}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "image" {
				if part.FileName() != "building.png" {
					t.Errorf("filename = %q", part.FileName())
				}
				fields["image"] = string(data)
				continue
			}
			fields[part.FormName()] = string(data)
		}
		for key, want := range map[string]string{"image": "original", "model": "gpt-image-1", "size": "auto", "quality": "medium", "n": "1"} {
			if fields[key] != want {
				t.Errorf("field %s = %q, want %q", key, fields[key], want)
			}
		}
		if fields["prompt"] != "edit prompt" {
			t.Errorf("prompt = %q", fields["prompt"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"b64_json":"`+base64.StdEncoding.EncodeToString([]byte("restored"))+`"}]}`)
	}))
	defer srv.Close()

	backend := NewAzureEditBackend(AzureEditConfig{
		Endpoint:   srv.URL + "/",
		Deployment: "gpt-image-1",
		APIVersion: "2025-04-01-preview",
		Auth:       llm.AzureAuth{APIKey: "k"},
	})
	got, err := backend.EditOnce(context.Background(), []byte("original"), "edit prompt")
	if err != nil {
		t.Fatalf("EditOnce returned error: %v", err)
	}
	if string(got) != "restored" {
		t.Fatalf("image = %q", got)
	}
}

func TestAzureEditBackendModerationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"moderation_blocked","message":"Your request was rejected by the safety system."}}`)
	}))
	defer srv.Close()

	backend := NewAzureEditBackend(AzureEditConfig{Endpoint: srv.URL, Deployment: "gpt-image-1", Auth: llm.AzureAuth{APIKey: "k"}})
	_, err := backend.EditOnce(context.Background(), []byte("x"), "p")
	if !IsModerationBlocked(err) {
		t.Fatalf("err = %v, want moderation block", err)
	}
	var editErr *EditError
	if !errors.As(err, &editErr) || editErr.Status != http.StatusBadRequest {
		t.Fatalf("err = %#v", err)
	}
}

func TestAzureEditBackendWithoutCredentials(t *testing.T) {
	_, err := NewAzureEditBackend(AzureEditConfig{}).EditOnce(context.Background(), []byte("x"), "p")
	if !errors.Is(err, llm.ErrMissingCredentials) {
		t.Fatalf("err = %v", err)
	}
}

func TestDecodeImagenPrediction(t *testing.T) {
	if _, err := decodePrediction(nil); !IsModerationBlocked(err) {
		t.Fatalf("empty predictions: err = %v", err)
	}

	filtered, _ := structpb.NewValue(map[string]any{"raiFilteredReason": "blocked by safety filter"})
	if _, err := decodePrediction([]*structpb.Value{filtered}); !IsModerationBlocked(err) {
		t.Fatalf("filtered prediction: err = %v", err)
	}

	good, _ := structpb.NewValue(map[string]any{"bytesBase64Encoded": base64.StdEncoding.EncodeToString([]byte("png"))})
	data, err := decodePrediction([]*structpb.Value{good})
	if err != nil || string(data) != "png" {
		t.Fatalf("data = %q, err = %v", data, err)
	}
}

func TestNewProviderSelectsBackend(t *testing.T) {
	chat, backend := NewProvider(config.AIConfig{Provider: config.ProviderGoogle})
	if _, ok := chat.(*llm.GeminiClient); !ok {
		t.Fatalf("google chat = %T", chat)
	}
	if _, ok := backend.(*VertexImagenBackend); !ok {
		t.Fatalf("google backend = %T", backend)
	}

	chat, backend = NewProvider(config.AIConfig{Provider: config.ProviderAzure})
	if _, ok := chat.(*llm.AzureClient); !ok {
		t.Fatalf("azure chat = %T", chat)
	}
	if _, ok := backend.(*AzureEditBackend); !ok {
		t.Fatalf("azure backend = %T", backend)
	}
}
