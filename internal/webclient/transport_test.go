package webclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/raysh454/paipan/internal/model"
	"github.com/raysh454/paipan/internal/testutil"
	"github.com/raysh454/paipan/internal/webclient"
)

func TestNewTransport_NoProxyIgnoresEnvironment(t *testing.T) {
	t.Parallel()
	tr, err := webclient.NewTransport(webclient.Config{})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if tr.Proxy != nil {
		t.Error("expected direct transport without proxy map")
	}
	if tr.TLSClientConfig != nil && tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("verification must stay on unless requested")
	}
}

func TestNewTransport_RoutesBothSchemes(t *testing.T) {
	t.Parallel()
	tr, err := webclient.NewTransport(webclient.Config{Proxy: model.LocalProxy("http://127.0.0.1:8080")})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}

	for _, target := range []string{"http://paipan.china95.net/", "https://paipan.china95.net/BaZi/BaZi.asp"} {
		u, _ := url.Parse(target)
		got, err := tr.Proxy(&http.Request{URL: u})
		if err != nil {
			t.Fatalf("Proxy(%s): %v", target, err)
		}
		if got == nil || got.Host != "127.0.0.1:8080" {
			t.Errorf("Proxy(%s) = %v, want 127.0.0.1:8080", target, got)
		}
	}
}

func TestNewTransport_SkipTLSVerification(t *testing.T) {
	t.Parallel()
	tr, err := webclient.NewTransport(webclient.Config{SkipTLSVerification: true})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected InsecureSkipVerify")
	}
}

func TestNetHTTPClient_HTTPGoesThroughProxy(t *testing.T) {
	t.Parallel()
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "direct-target")
	}))
	defer target.Close()

	proxy := testutil.NewRecordingProxy()
	defer proxy.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{Proxy: model.LocalProxy(proxy.URL())}, nil, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	resp, err := client.Do(context.Background(), &webclient.Request{Method: "POST", URL: target.URL, Body: []byte("a=1")})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if string(resp.Body) != "direct-target" {
		t.Errorf("unexpected body %q", resp.Body)
	}

	targetHost := target.Listener.Addr().String()
	fw := proxy.Forwards()
	if len(fw) != 1 || fw[0] != targetHost {
		t.Errorf("expected proxy to forward to %s, saw %v", targetHost, fw)
	}
}

func TestNetHTTPClient_HTTPSTunnelsThroughProxy(t *testing.T) {
	t.Parallel()
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer target.Close()

	proxy := testutil.NewRecordingProxy()
	defer proxy.Close()

	cfg := webclient.Config{Proxy: model.LocalProxy(proxy.URL()), SkipTLSVerification: true}
	client, err := webclient.NewNetHTTPClient(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	resp, err := client.Do(context.Background(), &webclient.Request{Method: "POST", URL: target.URL})
	if err != nil {
		t.Fatalf("Do through self-signed tunnel: %v", err)
	}
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("expected 418, got %d", resp.StatusCode)
	}

	targetHost := target.Listener.Addr().String()
	cs := proxy.Connects()
	if len(cs) != 1 || cs[0] != targetHost {
		t.Errorf("expected CONNECT %s, saw %v", targetHost, cs)
	}
}

func TestNetHTTPClient_HTTPSRejectsUntrustedCertByDefault(t *testing.T) {
	t.Parallel()
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer target.Close()

	proxy := testutil.NewRecordingProxy()
	defer proxy.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{Proxy: model.LocalProxy(proxy.URL())}, nil, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	if _, err := client.Do(context.Background(), &webclient.Request{Method: "GET", URL: target.URL}); err == nil {
		t.Fatal("expected certificate verification failure")
	}
}
