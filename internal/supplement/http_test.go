package supplement

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPChannel_FetchPassesSubjectKey(t *testing.T) {
	var gotSubject string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = r.URL.Query().Get("subject")
		w.Write([]byte("registry entries"))
	}))
	defer server.Close()
	defer http.DefaultTransport.(*http.Transport).CloseIdleConnections()

	ch := NewHTTPChannel(ChannelStudyRegistry, server.URL, time.Second)
	body, err := ch.Fetch(context.Background(), "compound-17")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if body != "registry entries" {
		t.Fatalf("unexpected body %q", body)
	}
	if gotSubject != "compound-17" {
		t.Fatalf("subject key not passed, got %q", gotSubject)
	}
}

func TestHTTPChannel_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limit: retry after 3 seconds", http.StatusTooManyRequests)
	}))
	defer server.Close()
	defer http.DefaultTransport.(*http.Transport).CloseIdleConnections()

	ch := NewHTTPChannel(ChannelLiterature, server.URL, time.Second)
	_, err := ch.Fetch(context.Background(), "compound-17")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	// The body must ride along so the failure classifier can read the
	// provider's hint.
	if !strings.Contains(err.Error(), "retry after 3 seconds") {
		t.Fatalf("error must carry the response body: %v", err)
	}
}

func TestChannelsFromEndpoints_SkipsUnconfigured(t *testing.T) {
	channels := ChannelsFromEndpoints(map[string]string{
		ChannelLiterature: "http://literature.local",
		ChannelGuidance:   "http://guidance.local",
		"weather":         "http://ignored.local",
	}, time.Second)

	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}
	if channels[0].Name() != ChannelLiterature || channels[1].Name() != ChannelGuidance {
		t.Fatalf("unexpected channel order: %s, %s", channels[0].Name(), channels[1].Name())
	}
}
