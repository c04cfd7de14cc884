package httpverb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyllective/egress0r/internal/core/lib/network/dialer"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
)

// echoServer 模拟 httpbin 风格的回显服务
type echoServer struct {
	mu       sync.Mutex
	requests []*http.Request
	hits     atomic.Int32
}

func (e *echoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.hits.Add(1)
	e.mu.Lock()
	e.requests = append(e.requests, r.Clone(context.Background()))
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet, http.MethodDelete:
		_ = json.NewEncoder(w).Encode(map[string]any{"args": map[string]string{"exfil": r.URL.Query().Get("exfil")}})
	case http.MethodPost:
		f, _, err := r.FormFile("exfil")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(map[string]any{"files": map[string]string{"exfil": string(b)}})
	case http.MethodPut, http.MethodPatch:
		_ = r.ParseForm()
		_ = json.NewEncoder(w).Encode(map[string]any{"form": map[string]string{"exfil": r.PostForm.Get("exfil")}})
	}
}

func (e *echoServer) methods() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, r := range e.requests {
		out = append(out, r.Method+" "+r.URL.Path)
	}
	return out
}

func newPayload(t *testing.T, content string) *payload.Payload {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "http.txt"), []byte(content), 0o644))
	p, err := payload.New(dir, "http.txt", payload.WithReadMode(payload.ModeText))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func collect(c *HTTPCheck) []model.Message {
	var out []model.Message
	for m := range c.Outcomes(context.Background()) {
		out = append(out, m)
	}
	return out
}

func TestHTTPCheck_AllVerbs(t *testing.T) {
	echo := &echoServer{}
	srv := httptest.NewServer(echo)
	defer srv.Close()

	base := srv.URL + "/"
	c, err := New([]string{"delete", "PUT", "GET", "POST", "PATCH"}, []string{base}, newPayload(t, "line one\nline two"), time.Second, nil)
	require.NoError(t, err)

	msgs := collect(c)
	require.Len(t, msgs, 5)
	for i, verb := range VerbOrder {
		assert.Equal(t, "Exfiltrated data to "+base+" using "+verb, msgs[i].Text)
		assert.Equal(t, model.MessagePositive, msgs[i].Type)
	}
	assert.Equal(t, []string{
		"GET /get", "GET /get",
		"POST /post",
		"PATCH /patch",
		"PUT /put",
		"DELETE /delete", "DELETE /delete",
	}, echo.methods())
}

func TestHTTPCheck_GETCapsAtThreeLines(t *testing.T) {
	echo := &echoServer{}
	srv := httptest.NewServer(echo)
	defer srv.Close()

	c, err := New([]string{"GET"}, []string{srv.URL + "/"}, newPayload(t, "a\nb\nc\nd"), time.Second, nil)
	require.NoError(t, err)

	msgs := collect(c)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].OK())

	echo.mu.Lock()
	defer echo.mu.Unlock()
	require.Len(t, echo.requests, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, echo.requests[i].URL.Query().Get("exfil"))
	}
}

func TestHTTPCheck_EchoMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = io.WriteString(w, `{"files": {"exfil": "tampered"}}`)
		case http.MethodPut:
			_, _ = io.WriteString(w, `not json`)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	defer srv.Close()

	c, err := New([]string{"GET", "POST", "PUT"}, []string{srv.URL + "/"}, newPayload(t, "secret"), time.Second, nil)
	require.NoError(t, err)

	msgs := collect(c)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Failed to exfiltrate data to "+srv.URL+"/ using GET", msgs[0].Text)
	for _, m := range msgs {
		assert.False(t, m.OK())
	}
}

func TestHTTPCheck_Proxy(t *testing.T) {
	echo := &echoServer{}
	srv := httptest.NewServer(echo)
	defer srv.Close()

	// 转发代理直接用回显服务模拟，请求行是绝对 URI
	proxy := &echoServer{}
	proxySrv := httptest.NewServer(proxy)
	defer proxySrv.Close()

	c, err := New([]string{"PUT"}, []string{srv.URL + "/"}, newPayload(t, "data"), time.Second,
		dialer.Proxies{"http": proxySrv.URL, "https": proxySrv.URL})
	require.NoError(t, err)

	msgs := collect(c)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Exfiltrated data to "+srv.URL+"/ using PUT", msgs[0].Text)
	assert.Equal(t, "Exfiltrated data to "+srv.URL+"/ using PUT via proxy", msgs[1].Text)
	assert.Equal(t, int32(1), echo.hits.Load())
	assert.Equal(t, int32(1), proxy.hits.Load())
}

func TestHTTPCheck_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/"
	srv.Close()

	c, err := New([]string{"POST"}, []string{base}, newPayload(t, "data"), 500*time.Millisecond, nil)
	require.NoError(t, err)

	msgs := collect(c)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].OK())
}

func TestHTTPCheck_MissingPayload(t *testing.T) {
	echo := &echoServer{}
	srv := httptest.NewServer(echo)
	defer srv.Close()

	p, err := payload.New(t.TempDir(), "absent.txt")
	require.NoError(t, err)
	c, err := New([]string{"GET"}, []string{srv.URL + "/"}, p, time.Second, nil)
	require.NoError(t, err)

	msgs := collect(c)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].OK())
	assert.Zero(t, echo.hits.Load())
}

func TestNew_Validation(t *testing.T) {
	p := newPayload(t, "x")
	_, err := New([]string{"TRACE"}, nil, p, 0, nil)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = New([]string{"GET"}, nil, nil, 0, nil)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = New([]string{"GET"}, nil, p, 0, dialer.Proxies{"http": "::bad"})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func TestEchoedField(t *testing.T) {
	ok, err := echoedField([]byte(`{"form":{"exfil":"a b"}}`), "form.exfil", "a b")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = echoedField([]byte(`{"form":{}}`), "form.exfil", "a b")
	assert.ErrorIs(t, err, ErrDecode)

	_, err = echoedField([]byte(`<html>`), "form.exfil", "a b")
	assert.ErrorIs(t, err, ErrDecode)
}
