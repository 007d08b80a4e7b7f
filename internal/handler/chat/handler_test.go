package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
	"github.com/zhouzirui/implantai/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/implantai/backend/internal/service/chat"
	"github.com/zhouzirui/implantai/backend/internal/service/imaging"
)

type fakeSender struct {
	mu       sync.Mutex
	requests []ai.Request
	reply    ai.Reply
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeSender) Send(_ context.Context, req ai.Request) (ai.Reply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.reply, f.err
}

func setupRouter(sender *fakeSender) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(chatservice.Options{Sender: sender, Model: catalog.Flash})
	handler := New(chatSvc, imaging.DefaultOptions(), nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSubmitText(t *testing.T) {
	sender := &fakeSender{reply: ai.Reply{Text: "Assess buccal bone.", Model: catalog.Flash}}
	r, _ := setupRouter(sender)

	resp := doJSON(r, http.MethodPost, "/conversation/messages", map[string]any{"text": "Patient #4001, missing tooth 36"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var view SubmitView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if view.Reply.Text != "Assess buccal bone." || view.Error != "" {
		t.Fatalf("unexpected reply: %+v", view)
	}
	if view.User.Speaker != chat.SpeakerUser {
		t.Fatalf("unexpected user turn: %+v", view.User)
	}
}

func TestSubmitWithDataURLImages(t *testing.T) {
	sender := &fakeSender{reply: ai.Reply{Text: "ok", Model: catalog.Flash}}
	r, _ := setupRouter(sender)

	img := chat.Image{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
	resp := doJSON(r, http.MethodPost, "/conversation/messages", map[string]any{"images": []string{img.DataURL()}})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(sender.requests) != 1 || len(sender.requests[0].Images) != 1 {
		t.Fatalf("unexpected requests: %+v", sender.requests)
	}
	if !bytes.Equal(sender.requests[0].Images[0].Data, img.Data) {
		t.Fatal("image payload changed in transit")
	}
}

func TestSubmitRejectsBadDataURL(t *testing.T) {
	sender := &fakeSender{}
	r, _ := setupRouter(sender)

	resp := doJSON(r, http.MethodPost, "/conversation/messages", map[string]any{"text": "x", "images": []string{"not-a-data-url"}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if len(sender.requests) != 0 {
		t.Fatal("bad image must not reach the sender")
	}
}

func TestSubmitEmpty(t *testing.T) {
	sender := &fakeSender{}
	r, _ := setupRouter(sender)

	resp := doJSON(r, http.MethodPost, "/conversation/messages", map[string]any{"text": "   "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if len(sender.requests) != 0 {
		t.Fatal("empty submission must not reach the sender")
	}
}

func TestSubmitTransportFailureStillOK(t *testing.T) {
	sender := &fakeSender{err: &ai.TransportError{Reason: ai.ReasonServiceUnavailable, Err: errors.New("503")}}
	r, svc := setupRouter(sender)

	resp := doJSON(r, http.MethodPost, "/conversation/messages", map[string]any{"text": "hi"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var view SubmitView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if view.Error != string(ai.ReasonServiceUnavailable) || !view.Reply.Failure {
		t.Fatalf("unexpected failure view: %+v", view)
	}
	if n := len(svc.Turns(context.Background())); n != 3 {
		t.Fatalf("unexpected log length: %d", n)
	}
}

func TestSubmitMultipartPreprocessesFiles(t *testing.T) {
	sender := &fakeSender{reply: ai.Reply{Text: "ok", Model: catalog.Flash}}
	r, _ := setupRouter(sender)

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, image.NewRGBA(image.Rect(0, 0, 3000, 1500))); err != nil {
		t.Fatalf("png.Encode err: %v", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("text", "CBCT attached")
	for name, data := range map[string][]byte{"cbct.png": pngBuf.Bytes(), "notes.txt": []byte("hello")} {
		part, err := writer.CreateFormFile("images", name)
		if err != nil {
			t.Fatalf("CreateFormFile err: %v", err)
		}
		_, _ = part.Write(data)
	}
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/conversation/messages", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var view SubmitView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(view.ImageErrors) != 1 || view.ImageErrors[0].Name != "notes.txt" {
		t.Fatalf("unexpected image errors: %+v", view.ImageErrors)
	}
	sent := sender.requests[0]
	if sent.Text != "CBCT attached" || len(sent.Images) != 1 {
		t.Fatalf("unexpected request: text=%q images=%d", sent.Text, len(sent.Images))
	}
	if sent.Images[0].MIMEType != imaging.OutputMIMEType {
		t.Fatalf("unexpected mime type: %s", sent.Images[0].MIMEType)
	}
}

func TestSubmitWhileBusyReturnsConflict(t *testing.T) {
	sender := &fakeSender{
		reply:   ai.Reply{Text: "ok", Model: catalog.Flash},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	r, _ := setupRouter(sender)

	done := make(chan int, 1)
	go func() {
		done <- doJSON(r, http.MethodPost, "/conversation/messages", map[string]any{"text": "first"}).Code
	}()
	<-sender.started

	if code := doJSON(r, http.MethodPost, "/conversation/messages", map[string]any{"text": "second"}).Code; code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if code := doJSON(r, http.MethodDelete, "/conversation/", nil).Code; code != http.StatusConflict {
		t.Fatalf("expected 409 on reset, got %d", code)
	}

	close(sender.block)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("expected 200 for first submission, got %d", code)
	}
}

func TestSubmitAction(t *testing.T) {
	sender := &fakeSender{reply: ai.Reply{Text: "ok", Model: catalog.Flash}}
	r, _ := setupRouter(sender)

	resp := doJSON(r, http.MethodPost, "/conversation/actions/surg_protocol", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(sender.requests[0].Text, "surgical protocol") {
		t.Fatalf("unexpected action prompt: %q", sender.requests[0].Text)
	}

	if code := doJSON(r, http.MethodPost, "/conversation/actions/unknown", nil).Code; code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestSelectModel(t *testing.T) {
	r, svc := setupRouter(&fakeSender{})

	resp := doJSON(r, http.MethodPut, "/conversation/model", map[string]string{"model": "auto"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if svc.SelectedModel() != catalog.Auto {
		t.Fatalf("unexpected selected model: %s", svc.SelectedModel())
	}

	if code := doJSON(r, http.MethodPut, "/conversation/model", map[string]string{"model": "gpt"}).Code; code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestGetAndResetConversation(t *testing.T) {
	sender := &fakeSender{reply: ai.Reply{Text: "ok", Model: catalog.Flash}}
	r, _ := setupRouter(sender)

	doJSON(r, http.MethodPost, "/conversation/messages", map[string]any{"text": "hi"})

	var view ConversationView
	resp := doJSON(r, http.MethodGet, "/conversation/", nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(view.Turns) != 3 || view.Model != catalog.Flash || view.Busy {
		t.Fatalf("unexpected conversation: %+v", view)
	}

	resp = doJSON(r, http.MethodDelete, "/conversation/", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp = doJSON(r, http.MethodGet, "/conversation/", nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(view.Turns) != 1 || !view.Turns[0].Greeting {
		t.Fatalf("expected greeting only, got %+v", view.Turns)
	}
}
