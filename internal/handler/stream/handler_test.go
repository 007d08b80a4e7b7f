package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	chatservice "github.com/zhouzirui/implantai/backend/internal/service/chat"
)

func TestEventsStreamSnapshotAndModelChange(t *testing.T) {
	chatSvc := chatservice.NewService(chatservice.Options{Model: catalog.Flash})
	handler := New(chatSvc, time.Hour, nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/conversation/events", nil)
	if err != nil {
		t.Fatalf("NewRequest err: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do err: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read err: %v", err)
			}
			if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
				return name
			}
		}
	}

	if name := readEvent(); name != "snapshot" {
		t.Fatalf("expected snapshot first, got %s", name)
	}

	if _, err := chatSvc.SelectModel(ctx, "pro"); err != nil {
		t.Fatalf("SelectModel err: %v", err)
	}
	if name := readEvent(); name != string(chatservice.EventModel) {
		t.Fatalf("expected model event, got %s", name)
	}
}
