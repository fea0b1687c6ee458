package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/exchangeloader/internal/config"
	"github.com/milkywaybrain/exchangeloader/internal/connector"
	"github.com/milkywaybrain/exchangeloader/internal/selection"
	"github.com/milkywaybrain/exchangeloader/internal/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgetCfg = config.Widget{Name: "exchange", Placeholder: "Select exchange"}

// exchangeServer serves body with status on the exchange list path and
// counts the requests.
type exchangeServer struct {
	*httptest.Server
	mu       sync.Mutex
	status   int
	body     string
	requests int32
}

func newExchangeServer(t *testing.T, status int, body string) *exchangeServer {
	t.Helper()
	s := &exchangeServer{status: status, body: body}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.requests, 1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, config.DefaultSourcePath, r.URL.Path)
		s.mu.Lock()
		status, body := s.status, s.body
		s.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *exchangeServer) set(status int, body string) {
	s.mu.Lock()
	s.status, s.body = status, body
	s.mu.Unlock()
}

func (s *exchangeServer) source() *RESTSource {
	return NewRESTSource(connector.NewREST(&config.REST{ReqTimeoutSec: 5}), s.URL+config.DefaultSourcePath)
}

// logLines returns the JSON log records written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		rec := map[string]interface{}{}
		require.NoError(t, jsoniter.UnmarshalFromString(line, &rec))
		out = append(out, rec)
	}
	return out
}

func errorRecords(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	var out []map[string]interface{}
	for _, rec := range logLines(t, buf) {
		if rec["level"] == "error" {
			out = append(out, rec)
		}
	}
	return out
}

type fixture struct {
	widget *selection.Select
	doc    *selection.Document
	logs   *bytes.Buffer
	loader *Loader
}

func newFixture(src Source, store storage.Store, initial ...selection.Option) *fixture {
	f := &fixture{
		widget: selection.NewSelect("exchange", initial...),
		logs:   &bytes.Buffer{},
	}
	f.doc = selection.NewDocument(f.widget)
	f.loader = NewLoader(&widgetCfg, src, f.doc, store, zerolog.New(zerolog.SyncWriter(f.logs)))
	return f
}

func TestRefreshHappyPath(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Binance","Kraken"]`)
	f := newFixture(srv.source(), nil)

	res := f.loader.Refresh(context.Background())
	require.True(t, res.OK(), "refresh error: %v", res.Err)
	assert.Equal(t, List{"Binance", "Kraken"}, res.Exchanges)
	assert.Equal(t, []selection.Option{
		{Value: "", Label: "Select exchange", Selected: true, Disabled: true},
		{Value: "Binance", Label: "Binance"},
		{Value: "Kraken", Label: "Kraken"},
	}, f.widget.Options())
	assert.Empty(t, errorRecords(t, f.logs))
}

func TestRefreshEmptyList(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `[]`)
	f := newFixture(srv.source(), nil, selection.BuildOptions("Select exchange", []string{"Old"})...)

	res := f.loader.Refresh(context.Background())
	require.True(t, res.OK())
	assert.Empty(t, res.Exchanges)
	assert.Equal(t, []selection.Option{selection.Placeholder("Select exchange")}, f.widget.Options())
}

func TestRefreshFailureLeavesWidget(t *testing.T) {
	t.Parallel()
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	for name, tc := range map[string]struct {
		status int
		body   string
		url    string
		kind   error
	}{
		"transport":       {url: closedURL, kind: ErrTransport},
		"server error":    {status: http.StatusInternalServerError, body: `["Binance"]`, kind: ErrTransport},
		"not found":       {status: http.StatusNotFound, body: `not found`, kind: ErrTransport},
		"object body":     {status: http.StatusOK, body: `{"exchanges":["Binance"]}`, kind: ErrResponse},
		"null body":       {status: http.StatusOK, body: `null`, kind: ErrResponse},
		"empty body":      {status: http.StatusOK, body: ``, kind: ErrResponse},
		"number elements": {status: http.StatusOK, body: `[1,2]`, kind: ErrResponse},
		"trailing data":   {status: http.StatusOK, body: `["Binance"] ["Kraken"]`, kind: ErrResponse},
		"html":            {status: http.StatusOK, body: `<html></html>`, kind: ErrResponse},
		"null element":    {status: http.StatusOK, body: `["Binance",null]`, kind: ErrResponse},
		"only null":       {status: http.StatusOK, body: `[null]`, kind: ErrResponse},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var src Source
			if tc.url != "" {
				src = NewRESTSource(connector.NewREST(&config.REST{ReqTimeoutSec: 5}), tc.url)
			} else {
				src = newExchangeServer(t, tc.status, tc.body).source()
			}
			before := selection.BuildOptions("Select exchange", []string{"Bitstamp", "Gemini"})
			store := &recordStore{}
			f := newFixture(src, store, before...)

			res := f.loader.Refresh(context.Background())
			require.False(t, res.OK())
			assert.True(t, errors.Is(res.Err, tc.kind), "got %v", res.Err)
			assert.True(t, IsFetchFailure(res.Err))
			assert.Nil(t, res.Exchanges)
			assert.Equal(t, before, f.widget.Options())
			assert.Empty(t, store.snapshots())

			recs := logLines(t, f.logs)
			require.Len(t, recs, 1)
			assert.Equal(t, "error", recs[0]["level"])
			assert.Equal(t, "error loading exchanges", recs[0]["message"])
			assert.NotEmpty(t, recs[0]["error"])
		})
	}
}

func TestRefreshOrderPreserved(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 2, 7, 100} {
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("exchange-%03d", n-i)
		}
		body, err := jsoniter.MarshalToString(names)
		require.NoError(t, err)

		srv := newExchangeServer(t, http.StatusOK, body)
		f := newFixture(srv.source(), nil)
		require.True(t, f.loader.Refresh(context.Background()).OK())

		opts := f.widget.Options()
		require.Len(t, opts, n+1)
		assert.Equal(t, selection.Placeholder("Select exchange"), opts[0])
		for i, name := range names {
			assert.Equal(t, selection.Option{Value: name, Label: name}, opts[i+1])
		}
	}
}

func TestRefreshIdempotent(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Binance","Kraken"]`)
	f := newFixture(srv.source(), nil)

	require.True(t, f.loader.Refresh(context.Background()).OK())
	once := f.widget.Options()
	require.True(t, f.loader.Refresh(context.Background()).OK())
	assert.Equal(t, once, f.widget.Options())
	assert.Equal(t, int32(2), atomic.LoadInt32(&srv.requests))
}

func TestRefreshTargetMissing(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Binance"]`)
	logs := &bytes.Buffer{}
	loader := NewLoader(&widgetCfg, srv.source(), selection.NewDocument(selection.NewSelect("symbol")), nil, zerolog.New(logs))

	res := loader.Refresh(context.Background())
	require.False(t, res.OK())
	assert.True(t, errors.Is(res.Err, ErrTargetMissing))
	assert.False(t, IsFetchFailure(res.Err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&srv.requests))
	assert.Len(t, errorRecords(t, logs), 1)
}

func TestRefreshCanceled(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Binance"]`)
	before := []selection.Option{selection.Placeholder("Select exchange")}
	f := newFixture(srv.source(), nil, before...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.loader.Refresh(ctx)
	require.False(t, res.OK())
	assert.True(t, errors.Is(res.Err, ErrTransport))
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Equal(t, before, f.widget.Options())

	recs := logLines(t, f.logs)
	require.Len(t, recs, 1)
	assert.Equal(t, "debug", recs[0]["level"])
}

func TestRefreshAsync(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Kraken"]`)
	f := newFixture(srv.source(), nil)

	select {
	case res := <-f.loader.RefreshAsync(context.Background()):
		require.True(t, res.OK())
		assert.Equal(t, List{"Kraken"}, res.Exchanges)
	case <-time.After(5 * time.Second):
		t.Fatal("no result from async refresh")
	}
	assert.Len(t, f.widget.Options(), 2)
}

func TestRefreshConcurrent(t *testing.T) {
	t.Parallel()
	lists := []string{`["a","b","c"]`, `["x","y"]`}
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		i := atomic.AddInt32(&n, 1)
		_, _ = io.WriteString(w, lists[i%2])
	}))
	defer srv.Close()

	f := newFixture(NewRESTSource(connector.NewREST(&config.REST{}), srv.URL), nil)
	results := make([]<-chan Result, 20)
	for i := range results {
		results[i] = f.loader.RefreshAsync(context.Background())
	}
	for _, ch := range results {
		assert.True(t, (<-ch).OK())
	}

	got := f.widget.Options()
	want := [][]selection.Option{
		selection.BuildOptions("Select exchange", []string{"a", "b", "c"}),
		selection.BuildOptions("Select exchange", []string{"x", "y"}),
	}
	assert.Contains(t, want, got)
}

type recordStore struct {
	mu  sync.Mutex
	got []storage.Snapshot
	err error
}

func (r *recordStore) CommitSnapshot(_ context.Context, s storage.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
	return r.err
}

func (r *recordStore) snapshots() []storage.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storage.Snapshot(nil), r.got...)
}

func TestRefreshPublishesSnapshot(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Binance","Kraken"]`)
	store := &recordStore{}
	f := newFixture(srv.source(), store)
	ts := time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC)
	f.loader.now = func() time.Time { return ts }

	require.True(t, f.loader.Refresh(context.Background()).OK())
	assert.Equal(t, []storage.Snapshot{{
		Widget:    "exchange",
		Exchanges: []string{"Binance", "Kraken"},
		Timestamp: ts,
	}}, store.snapshots())
}

func TestRefreshStoreFailure(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Binance"]`)
	store := &recordStore{err: errors.New("nats down")}
	f := newFixture(srv.source(), store)

	res := f.loader.Refresh(context.Background())
	require.True(t, res.OK())
	assert.Len(t, f.widget.Options(), 2)

	recs := errorRecords(t, f.logs)
	require.Len(t, recs, 1)
	assert.Equal(t, "error storing exchange options", recs[0]["message"])
}

func TestRunOnce(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Binance"]`)
	f := newFixture(srv.source(), nil)

	require.NoError(t, f.loader.Run(context.Background(), 0))
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.requests))
	assert.Len(t, f.widget.Options(), 2)
}

func TestRunInterval(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Binance"]`)
	f := newFixture(srv.source(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loader.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&srv.requests) >= 3 }, 5*time.Second, 5*time.Millisecond)
	srv.set(http.StatusOK, `["Kraken","Gemini"]`)
	require.Eventually(t, func() bool { return len(f.widget.Options()) == 3 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDecodeList(t *testing.T) {
	t.Parallel()
	list, err := decodeList([]byte(" [\"Binance\", \"\", \"Kraken\"]\n"))
	require.NoError(t, err)
	assert.Equal(t, List{"Binance", "", "Kraken"}, list)

	list, err = decodeList([]byte(`[]`))
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	for _, body := range []string{` null `, `["Binance",null]`, `[null]`, `["Binance",true]`} {
		list, err = decodeList([]byte(body))
		assert.True(t, errors.Is(err, ErrResponse), body)
		assert.Nil(t, list, body)
	}
}

type countObserver struct {
	mu      sync.Mutex
	results []Result
}

func (c *countObserver) ObserveRefresh(res Result, took time.Duration) {
	c.mu.Lock()
	c.results = append(c.results, res)
	c.mu.Unlock()
}

func TestRefreshObserved(t *testing.T) {
	t.Parallel()
	srv := newExchangeServer(t, http.StatusOK, `["Binance"]`)
	f := newFixture(srv.source(), nil)
	obs := &countObserver{}
	f.loader.SetObserver(obs)

	f.loader.Refresh(context.Background())
	srv.set(http.StatusBadGateway, ``)
	f.loader.Refresh(context.Background())

	require.Len(t, obs.results, 2)
	assert.True(t, obs.results[0].OK())
	assert.True(t, errors.Is(obs.results[1].Err, ErrTransport))
}
