package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"workforce-auth/internal/notify"
)

func TestCloudAPI_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/PNID/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var msg cloudMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("Decode: %v", err)
		}
		if msg.MessagingProduct != "whatsapp" || msg.To != "15551234567" || msg.Type != "text" || msg.Text.Body != "hello" {
			t.Errorf("message = %+v", msg)
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer server.Close()

	c := NewCloudAPIClient("tok", "PNID", server.URL+"/")
	if err := c.Send(context.Background(), "+15551234567", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestCloudAPI_Unconfigured(t *testing.T) {
	c := NewCloudAPIClient("tok", "", "")
	if c.Configured() {
		t.Fatal("missing phone number id should be unconfigured")
	}
	if c.BaseURL != DefaultCloudBaseURL {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
	if err := c.Send(context.Background(), "+1", "x"); !errors.Is(err, notify.ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestWebhook_SignsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if got, want := r.Header.Get(SignatureHeader), "sha256="+Sign("s3cret", raw); got != want {
			t.Errorf("signature = %q, want %q", got, want)
		}
		var body map[string]string
		json.Unmarshal(raw, &body)
		if body["to"] != "+15551234567" || body["body"] != "hi" || body["channel"] != "whatsapp" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	if err := NewWebhookClient(server.URL, "s3cret").Send(context.Background(), "+15551234567", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestWebhook_NoSecretNoSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("signature header should be absent without a secret")
		}
	}))
	defer server.Close()

	if err := NewWebhookClient(server.URL, "").Send(context.Background(), "+1", "x"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestProviderChainOrder(t *testing.T) {
	var mu sync.Mutex
	var hits []string
	record := func(name string) {
		mu.Lock()
		hits = append(hits, name)
		mu.Unlock()
	}
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record("cloud")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record("webhook")
	}))
	defer hook.Close()

	chain := notify.NewChain(nil,
		NewCloudAPIClient("tok", "PNID", failing.URL),
		NewWebhookClient(hook.URL, ""),
	)
	name, err := chain.Send(context.Background(), "+15551234567", "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if name != "whatsapp-webhook" {
		t.Errorf("provider = %q", name)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 2 || hits[0] != "cloud" || hits[1] != "webhook" {
		t.Errorf("hits = %v, want [cloud webhook]", hits)
	}
}
