package testutil

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordingProxy is a minimal forward proxy for tests. Plain HTTP requests
// arrive in absolute form and are forwarded; HTTPS arrives as CONNECT and is
// tunneled byte for byte. Every destination it is asked for is recorded.
type RecordingProxy struct {
	Server *httptest.Server

	mu       sync.Mutex
	connects []string
	forwards []string
	bodies   [][]byte
}

// NewRecordingProxy starts the proxy on a loopback port.
func NewRecordingProxy() *RecordingProxy {
	p := &RecordingProxy{}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	return p
}

// URL is the proxy URL to put into a ProxyConfig.
func (p *RecordingProxy) URL() string { return p.Server.URL }

// Close stops the proxy.
func (p *RecordingProxy) Close() { p.Server.Close() }

// Connects returns the host:port targets of CONNECT requests seen so far.
func (p *RecordingProxy) Connects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.connects...)
}

// Forwards returns the hosts of plain HTTP requests seen so far.
func (p *RecordingProxy) Forwards() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.forwards...)
}

// Bodies returns the bodies of forwarded plain HTTP requests.
func (p *RecordingProxy) Bodies() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.bodies...)
}

func (p *RecordingProxy) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.tunnel(w, r)
		return
	}
	p.forward(w, r)
}

func (p *RecordingProxy) tunnel(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.connects = append(p.connects, r.Host)
	p.mu.Unlock()

	upstream, err := net.Dial("tcp", r.Host)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		upstream.Close()
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	client, rw, err := hj.Hijack()
	if err != nil {
		upstream.Close()
		return
	}

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		client.Close()
		upstream.Close()
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer upstream.Close()
		// rw may already hold bytes the client sent after the CONNECT.
		_, _ = io.Copy(upstream, rw)
	}()
	go func() {
		defer wg.Done()
		defer client.Close()
		_, _ = io.Copy(client, upstream)
	}()
	wg.Wait()
}

func (p *RecordingProxy) forward(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	p.forwards = append(p.forwards, r.URL.Host)
	p.bodies = append(p.bodies, body)
	p.mu.Unlock()

	out, err := http.NewRequestWithContext(r.Context(), r.Method, r.URL.String(), bytes.NewReader(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	out.Header = r.Header.Clone()

	tr := &http.Transport{Proxy: nil}
	defer tr.CloseIdleConnections()
	resp, err := tr.RoundTrip(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
