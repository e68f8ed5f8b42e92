package egress

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"lexreview/engine/internal/llm"
)

type recordingTransport struct {
	called bool
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.called = true
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func request(t *testing.T, rawURL string) *http.Request {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return &http.Request{URL: u}
}

func TestAllowsListedHost(t *testing.T) {
	base := &recordingTransport{}
	rt := NewAllowlistRoundTripper(base, []string{"api.openai.com"})

	resp, err := rt.RoundTrip(request(t, "https://api.openai.com/v1/chat/completions"))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !base.called {
		t.Fatalf("resp = %+v, base called = %v", resp, base.called)
	}
}

func TestBlocksUnlistedHost(t *testing.T) {
	base := &recordingTransport{}
	rt := NewAllowlistRoundTripper(base, []string{"api.openai.com"})

	_, err := rt.RoundTrip(request(t, "https://attacker.example.com/exfil"))
	if !errors.Is(err, llm.ErrEgressBlocked) {
		t.Fatalf("err = %v, want ErrEgressBlocked", err)
	}
	if base.called {
		t.Fatal("blocked request reached the base transport")
	}
}

func TestBlocksPlainHTTP(t *testing.T) {
	rt := NewAllowlistRoundTripper(nil, []string{"api.openai.com"})
	_, err := rt.RoundTrip(request(t, "http://api.openai.com/v1/models"))
	if !errors.Is(err, llm.ErrEgressBlocked) {
		t.Fatalf("err = %v, want ErrEgressBlocked", err)
	}
}

func TestBlocksIPLiterals(t *testing.T) {
	rt := NewAllowlistRoundTripper(nil, []string{"192.0.2.10"})
	_, err := rt.RoundTrip(request(t, "https://192.0.2.10/v1/models"))
	if !errors.Is(err, llm.ErrEgressBlocked) {
		t.Fatalf("err = %v, want ErrEgressBlocked", err)
	}
}

func TestHostMatchIsCaseInsensitive(t *testing.T) {
	base := &recordingTransport{}
	rt := NewAllowlistRoundTripper(base, []string{"API.OpenAI.com"})
	if _, err := rt.RoundTrip(request(t, "https://api.openai.com/v1/models")); err != nil {
		t.Fatalf("round trip: %v", err)
	}
}
