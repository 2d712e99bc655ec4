package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func captureServer(t *testing.T, status int) (*httptest.Server, *[]byte) {
	t.Helper()
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func TestWebhookSlackPayload(t *testing.T) {
	srv, body := captureServer(t, http.StatusOK)

	n := NewWebhookNotifier(srv.URL, "slack", nil)
	if err := n.Send(Notification{Title: "Review expiring", Message: "5 minutes left"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var payload map[string]string
	if err := json.Unmarshal(*body, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload["text"] != "Review expiring: 5 minutes left" {
		t.Errorf("text = %q", payload["text"])
	}
}

func TestWebhookFeishuPayload(t *testing.T) {
	srv, body := captureServer(t, http.StatusOK)

	n := NewWebhookNotifier(srv.URL, "feishu", nil)
	if err := n.Send(Notification{Title: "T", Message: "M"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var payload struct {
		MsgType string `json:"msg_type"`
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(*body, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload.MsgType != "text" || payload.Content.Text != "T: M" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWebhookCustomTemplate(t *testing.T) {
	srv, body := captureServer(t, http.StatusOK)

	n := NewWebhookNotifier(srv.URL, "custom", map[string]string{
		"template": `{"summary": "{{.Title}}", "detail": "{{.Message}}"}`,
	})
	if err := n.Send(Notification{Title: "T", Message: "M"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var payload map[string]string
	if err := json.Unmarshal(*body, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload["summary"] != "T" || payload["detail"] != "M" {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebhookCustomTemplateMissing(t *testing.T) {
	n := NewWebhookNotifier("http://127.0.0.1:1", "custom", nil)
	if err := n.Send(Notification{Title: "T"}); err == nil {
		t.Error("missing template should be an error")
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadGateway)

	n := NewWebhookNotifier(srv.URL, "slack", nil)
	if err := n.Send(Notification{Title: "T"}); err == nil {
		t.Error("non-2xx status should be an error")
	}
}

func TestMultiNotifierAttemptsAll(t *testing.T) {
	srvOK, body := captureServer(t, http.StatusOK)
	srvBad, _ := captureServer(t, http.StatusInternalServerError)

	m := NewMultiNotifier(
		NewWebhookNotifier(srvBad.URL, "slack", nil),
		NewWebhookNotifier(srvOK.URL, "slack", nil),
	)
	if err := m.Send(Notification{Title: "T", Message: "M"}); err == nil {
		t.Error("first notifier's error should surface")
	}
	if len(*body) == 0 {
		t.Error("later notifiers must still be attempted")
	}
}
