package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	first := b.Subscribe()
	second := b.Subscribe()

	b.Publish(Event{RestorationID: "abc", Stage: StageAnalyzing})

	for i, ch := range []chan Event{first, second} {
		evt := <-ch
		if evt.RestorationID != "abc" || evt.Stage != StageAnalyzing {
			t.Fatalf("subscriber %d got %+v", i, evt)
		}
		if evt.At.IsZero() {
			t.Fatalf("subscriber %d: timestamp not set", i)
		}
	}

	b.Unsubscribe(first)
	b.Unsubscribe(first)
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", b.Subscribers())
	}
	if _, open := <-first; open {
		t.Fatal("unsubscribed channel should be closed")
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	for i := 0; i < 100; i++ {
		b.Publish(Event{RestorationID: "x", Stage: StageEditing})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffer = %d, want full (%d)", len(ch), cap(ch))
	}
}

func TestBrokerStreamsServerSentEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	for b.Subscribers() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(Event{RestorationID: "abc", Stage: StagePersisted})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if lines[0] != "event: persisted" || !strings.Contains(lines[1], `"restoration_id":"abc"`) {
		t.Fatalf("stream = %q", lines)
	}
}

func TestBrokerStreamOutlivesServerWriteTimeout(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewUnstartedServer(b)
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	for b.Subscribers() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)
	b.Publish(Event{RestorationID: "late", Stage: StageEditing})

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream closed before the late event: %v", err)
		}
		if strings.TrimSpace(line) == "event: editing" {
			return
		}
	}
}
