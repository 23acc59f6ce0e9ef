package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStaticFetcher_Fetch_ReturnsPage(t *testing.T) {
	t.Parallel()

	var gotAgent, gotTrace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.UserAgent()
		gotTrace = r.Header.Get("X-Trace")
		w.Header().Set("X-Served-By", "fixture")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>fixtures</body></html>"))
	}))
	defer srv.Close()

	f := NewStatic(StaticConfig{UserAgent: "matchday-test", Timeout: 5 * time.Second}, zap.NewNop())
	resp, err := f.Fetch(context.Background(), Request{
		URL:     srv.URL,
		Headers: http.Header{"X-Trace": {"yes"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "fixtures")
	require.Equal(t, "fixture", resp.Headers.Get("X-Served-By"))
	require.Equal(t, "matchday-test", gotAgent)
	require.Equal(t, "yes", gotTrace)
	require.Greater(t, resp.Duration, time.Duration(0))
}

func TestStaticFetcher_Fetch_RequiresURL(t *testing.T) {
	t.Parallel()

	f := NewStatic(StaticConfig{}, zap.NewNop())
	_, err := f.Fetch(context.Background(), Request{})
	require.Error(t, err)
}

func TestStaticFetcher_Fetch_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewStatic(StaticConfig{Timeout: 5 * time.Second}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := f.Fetch(ctx, Request{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStaticFetcher_BuildCollector(t *testing.T) {
	t.Parallel()

	f := NewStatic(StaticConfig{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second}, zap.NewNop())
	collector := f.buildCollector(Request{URL: "https://example.com"}, time.Unix(0, 0), &Response{}, new(error))
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)

	f = NewStatic(StaticConfig{}, zap.NewNop())
	collector = f.buildCollector(Request{URL: "https://example.com"}, time.Unix(0, 0), &Response{}, new(error))
	require.True(t, collector.IgnoreRobotsTxt)
}

func TestStaticFetcher_ConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := NewStatic(StaticConfig{}, zap.NewNop())
	req := Request{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result Response
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestHostLimiter_SecondRequestBlocks(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "https://example.com/a"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://example.com/b")
	require.Error(t, err)
}

func TestHostLimiter_DisabledAllowsBursts(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(0, 1)
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://example.com"))
	}
}

func TestHostLimiter_TracksHostsIndependently(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "https://one.example.com"))
	require.NoError(t, l.Wait(context.Background(), "https://two.example.com"))
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
