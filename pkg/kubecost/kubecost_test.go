package kubecost

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

var testLogger = log.New()

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:              endpoint,
		TLS:                   TLSConfig{Verify: true},
		ConnectTimeout:        time.Second,
		AllocationReadTimeout: 2 * time.Second,
		AssetsReadTimeout:     2 * time.Second,
		Aggregation:           AggregationContainer,
		Granularity:           GranularityHourly,
		Resolution:            "1m",
	}
}

type recordedRequest struct {
	path  string
	query url.Values
}

type fakeKubecost struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeKubecost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{path: r.URL.Path, query: r.URL.Query()})
	f.mu.Unlock()
	f.handler(w, r)
}

func writeData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 200, "data": data})
}

func TestQueryAllocationParameters(t *testing.T) {
	fake := &fakeKubecost{handler: func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []interface{}{map[string]interface{}{"a": map[string]interface{}{"cpuCost": 1.5}}})
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := NewClient(testLogger, testConfig(srv.URL))
	require.NoError(t, err)

	p, err := window.ParsePeriod("2024-01-01")
	require.NoError(t, err)

	tests := map[string]struct {
		opts              AllocationOptions
		expectedAggregate string
	}{
		"container aggregation omits the parameter": {
			opts: AllocationOptions{Aggregation: "container", Step: "1h", Resolution: "1m"},
		},
		"namespace aggregation": {
			opts:              AllocationOptions{Aggregation: "namespace", Step: "1d", Resolution: "5m", Accumulate: true, IncludeIdle: true},
			expectedAggregate: "namespace",
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			entries, err := c.QueryAllocation(context.Background(), p.Window(), tt.opts)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			record := entries[0]["a"].(map[string]interface{})
			assert.Equal(t, json.Number("1.5"), record["cpuCost"])

			fake.mu.Lock()
			last := fake.requests[len(fake.requests)-1]
			fake.mu.Unlock()
			assert.Equal(t, AllocationEndpoint, last.path)
			assert.Equal(t, "2024-01-01T00:00:00Z,2024-01-02T00:00:00Z", last.query.Get("window"))
			assert.Equal(t, tt.expectedAggregate, last.query.Get("aggregate"))
			_, hasAggregate := last.query["aggregate"]
			assert.Equal(t, tt.expectedAggregate != "", hasAggregate)
			assert.Equal(t, tt.opts.Step, last.query.Get("step"))
			assert.Equal(t, tt.opts.Resolution, last.query.Get("resolution"))
			assert.Equal(t, fmt.Sprint(tt.opts.Accumulate), last.query.Get("accumulate"))
			assert.Equal(t, fmt.Sprint(tt.opts.IncludeIdle), last.query.Get("includeIdle"))
		})
	}
}

func TestQueryAssetsParameters(t *testing.T) {
	fake := &fakeKubecost{handler: func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []interface{}{map[string]interface{}{}})
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := NewClient(testLogger, testConfig(srv.URL))
	require.NoError(t, err)
	p, _ := window.ParsePeriod("2024-01-01")
	_, err = c.QueryAssets(context.Background(), p.Window())
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, AssetsEndpoint, fake.requests[0].path)
	assert.Equal(t, "Compute", fake.requests[0].query.Get("filterCategories"))
	assert.Equal(t, "Node", fake.requests[0].query.Get("filterTypes"))
	assert.Equal(t, "true", fake.requests[0].query.Get("accumulate"))
}

func TestQueryErrors(t *testing.T) {
	p, _ := window.ParsePeriod("2024-01-01")

	tests := map[string]struct {
		handler         func(w http.ResponseWriter, r *http.Request)
		readTimeout     time.Duration
		expectedMessage string
	}{
		"error field on non-200": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":400,"error":"invalid window"}`))
			},
			expectedMessage: "returned HTTP 400: invalid window",
		},
		"plain text on non-200": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("boom"))
			},
			expectedMessage: "returned HTTP 500: boom",
		},
		"non JSON body on 200": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html></html>"))
			},
			expectedMessage: "check whether the endpoint should use http or https",
		},
		"read timeout": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
				writeData(w, []interface{}{})
			},
			readTimeout:     50 * time.Millisecond,
			expectedMessage: "read timeout",
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(tt.handler))
			defer srv.Close()

			cfg := testConfig(srv.URL)
			if tt.readTimeout != 0 {
				cfg.AllocationReadTimeout = tt.readTimeout
			}
			c, err := NewClient(testLogger, cfg)
			require.NoError(t, err)

			_, err = c.QueryAllocation(context.Background(), p.Window(), AllocationOptions{})
			require.Error(t, err)
			assert.True(t, exporterrors.Is(err, exporterrors.KindSourceUnavailable), err.Error())
			assert.Contains(t, err.Error(), tt.expectedMessage)
		})
	}
}

func TestQueryConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c, err := NewClient(testLogger, testConfig("http://"+addr))
	require.NoError(t, err)
	p, _ := window.ParsePeriod("2024-01-01")
	_, err = c.QueryAssets(context.Background(), p.Window())
	require.Error(t, err)
	assert.True(t, exporterrors.Is(err, exporterrors.KindSourceUnavailable))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestQueryTLSFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []interface{}{})
	}))
	defer srv.Close()

	c, err := NewClient(testLogger, testConfig(srv.URL))
	require.NoError(t, err)
	p, _ := window.ParsePeriod("2024-01-01")
	_, err = c.QueryAssets(context.Background(), p.Window())
	require.Error(t, err)
	assert.True(t, exporterrors.Is(err, exporterrors.KindSourceUnavailable))
	assert.Contains(t, err.Error(), "TLS certificate verification failed")

	cfg := testConfig(srv.URL)
	cfg.TLS.Verify = false
	c, err = NewClient(testLogger, cfg)
	require.NoError(t, err)
	_, err = c.QueryAssets(context.Background(), p.Window())
	assert.NoError(t, err)
}

func TestNewClientInvalidCABundle(t *testing.T) {
	cfg := testConfig("https://kubecost:9090")
	cfg.TLS.CABundle = []byte("not a certificate")
	_, err := NewClient(testLogger, cfg)
	require.Error(t, err)
	assert.True(t, exporterrors.Is(err, exporterrors.KindConfiguration))
}

// stubQuerier answers allocation queries by the hour of the window start.
type stubQuerier struct {
	calls      []window.Window
	opts       []AllocationOptions
	allocation func(w window.Window) ([]Entry, error)
	assets     []Entry
}

func (s *stubQuerier) QueryAllocation(ctx context.Context, w window.Window, opts AllocationOptions) ([]Entry, error) {
	s.calls = append(s.calls, w)
	s.opts = append(s.opts, opts)
	return s.allocation(w)
}

func (s *stubQuerier) QueryAssets(ctx context.Context, w window.Window) ([]Entry, error) {
	return s.assets, nil
}

func hourEntry(hour int) Entry {
	return Entry{fmt.Sprintf("container-%02d", hour): map[string]interface{}{"hour": hour}}
}

func TestFetchAllocationsPaginated(t *testing.T) {
	p, _ := window.ParsePeriod("2024-01-01")

	tests := map[string]struct {
		emptyHours    map[int]bool
		expectedHours []int
		expectedErr   bool
	}{
		"all hours present": {
			expectedHours: seq(0, 24, nil),
		},
		"hours 3 and 17 empty": {
			emptyHours:    map[int]bool{3: true, 17: true},
			expectedHours: seq(0, 24, map[int]bool{3: true, 17: true}),
		},
		"all hours empty": {
			emptyHours:  allHours(),
			expectedErr: true,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			q := &stubQuerier{allocation: func(w window.Window) ([]Entry, error) {
				hour := w.Start.Hour()
				if tt.emptyHours[hour] {
					return []Entry{{}}, nil
				}
				return []Entry{hourEntry(hour)}, nil
			}}
			cfg := testConfig("http://unused")
			cfg.Paginate = true
			f := NewFetcher(testLogger, q, cfg)

			entries, err := f.FetchAllocations(context.Background(), p)
			require.Len(t, q.calls, 24)
			for i, call := range q.calls {
				assert.Equal(t, i, call.Start.Hour(), "calls must be issued in hour order")
			}
			if tt.expectedErr {
				require.Error(t, err)
				assert.True(t, exporterrors.Is(err, exporterrors.KindEmptyResult))
				return
			}
			require.NoError(t, err)
			require.Len(t, entries, len(tt.expectedHours))
			for i, hour := range tt.expectedHours {
				assert.Equal(t, hourEntry(hour), entries[i])
			}
		})
	}
}

func TestFetchAllocationsDailyIgnoresPagination(t *testing.T) {
	p, _ := window.ParsePeriod("2024-01-01")
	q := &stubQuerier{allocation: func(w window.Window) ([]Entry, error) {
		return []Entry{hourEntry(w.Start.Hour())}, nil
	}}
	cfg := testConfig("http://unused")
	cfg.Granularity = GranularityDaily
	cfg.Paginate = true
	f := NewFetcher(testLogger, q, cfg)

	entries, err := f.FetchAllocations(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	require.Len(t, q.calls, 1)
	assert.Equal(t, p.Window(), q.calls[0])
	assert.Equal(t, "1d", q.opts[0].Step)
}

func TestFetchAllocationsUnpaginated(t *testing.T) {
	p, _ := window.ParsePeriod("2024-01-01")
	q := &stubQuerier{allocation: func(w window.Window) ([]Entry, error) {
		return []Entry{hourEntry(0), {}, hourEntry(1)}, nil
	}}
	cfg := testConfig("http://unused")
	cfg.Aggregation = "pod"
	f := NewFetcher(testLogger, q, cfg)

	entries, err := f.FetchAllocations(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	require.Len(t, q.calls, 1)
	assert.Equal(t, p.Window(), q.calls[0])
	assert.Equal(t, "pod", q.opts[0].Aggregation)
	assert.Equal(t, "1h", q.opts[0].Step)

	empty := &stubQuerier{allocation: func(w window.Window) ([]Entry, error) { return nil, nil }}
	_, err = NewFetcher(testLogger, empty, cfg).FetchAllocations(context.Background(), p)
	assert.True(t, exporterrors.Is(err, exporterrors.KindEmptyResult))
}

func TestFetchAssets(t *testing.T) {
	p, _ := window.ParsePeriod("2024-01-01")
	cfg := testConfig("http://unused")

	q := &stubQuerier{assets: []Entry{{"node": map[string]interface{}{}}}}
	entries, err := NewFetcher(testLogger, q, cfg).FetchAssets(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	q = &stubQuerier{assets: []Entry{{}}}
	_, err = NewFetcher(testLogger, q, cfg).FetchAssets(context.Background(), p)
	assert.True(t, exporterrors.Is(err, exporterrors.KindEmptyResult))
}

func TestDiscoverPeriods(t *testing.T) {
	w := window.Window{
		Start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC),
	}
	body := `{"code":200,"data":[
		{"cluster-one":{"name":"cluster-one","window":{"start":"2024-01-03T00:00:00Z","end":"2024-01-04T00:00:00Z"}}},
		{"cluster-one":{"name":"cluster-one","window":{"start":"2024-01-01T00:00:00Z","end":"2024-01-02T00:00:00Z"}}},
		{},
		{"cluster-one":{"name":"cluster-one","window":{"start":"2023-12-31T00:00:00Z","end":"2024-01-01T00:00:00Z"}}},
		{"__idle__":null,"cluster-one":{"window":{"start":"2024-01-05T00:00:00Z","end":"2024-01-06T00:00:00Z"}}}
	]}`
	fake := &fakeKubecost{handler: func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := NewClient(testLogger, testConfig(srv.URL))
	require.NoError(t, err)
	f := NewFetcher(testLogger, c, testConfig(srv.URL))

	periods, err := f.DiscoverPeriods(context.Background(), w)
	require.NoError(t, err)

	var dates []string
	for _, p := range periods {
		dates = append(dates, p.Date)
		assert.Equal(t, 24*time.Hour, p.End.Sub(p.Start))
	}
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-05"}, dates)

	require.Len(t, fake.requests, 1)
	q := fake.requests[0].query
	assert.Equal(t, "cluster", q.Get("aggregate"))
	assert.Equal(t, "1d", q.Get("step"))
	assert.Equal(t, "false", q.Get("accumulate"))
	assert.Equal(t, DiscoveryResolution, q.Get("resolution"))
	assert.True(t, strings.HasPrefix(q.Get("window"), "2024-01-01T00:00:00Z,"))
}

func TestDecodeEntry(t *testing.T) {
	e, err := DecodeEntry([]byte(`{"a":{"cpuCost":0.1}}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("0.1"), e["a"].(map[string]interface{})["cpuCost"])
}

func seq(from, to int, skip map[int]bool) []int {
	var out []int
	for i := from; i < to; i++ {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}

func allHours() map[int]bool {
	m := make(map[int]bool, 24)
	for i := 0; i < 24; i++ {
		m[i] = true
	}
	return m
}
