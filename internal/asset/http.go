package asset

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/skyatlas/hipscache/internal/observability"
)

type result struct {
	data []byte
	code int
}

// HTTPFetcher is the production Fetcher. A first Fetch for a URL starts
// the request on a background goroutine and returns (nil, 0); later
// calls return 0 until the request completes, then the final result.
// Completed results are kept in an expirable LRU until Release or TTL
// so the polling caller always sees them at least once.
type HTTPFetcher struct {
	logger *slog.Logger
	client *http.Client
	agent  string

	mu       sync.Mutex
	inflight map[string]*request
	done     *expirable.LRU[string, result]

	// Delayed requests share a small token pool so tile prefetch
	// cannot starve properties and allsky fetches.
	delayTokens chan struct{}
}

type request struct {
	finished bool
	res      result
}

type Option func(*HTTPFetcher)

func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) { f.agent = ua }
}

// NewHTTP creates an HTTPFetcher keeping up to size completed results
// for at most ttl before they expire unread.
func NewHTTP(logger *slog.Logger, size int, ttl time.Duration, opts ...Option) *HTTPFetcher {
	if size <= 0 {
		size = 256
	}
	f := &HTTPFetcher{
		logger:      logger,
		client:      &http.Client{Timeout: 30 * time.Second},
		inflight:    make(map[string]*request),
		done:        expirable.NewLRU[string, result](size, nil, ttl),
		delayTokens: make(chan struct{}, 4),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(url string, flags Flags) ([]byte, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if res, ok := f.done.Get(url); ok {
		return res.data, res.code
	}
	if req, ok := f.inflight[url]; ok {
		if !req.finished {
			return nil, StatusPending
		}
		delete(f.inflight, url)
		// A cached 598 keeps answering "retry" until the TTL expires,
		// which doubles as backoff for failing URLs.
		f.done.Add(url, req.res)
		return req.res.data, req.res.code
	}

	req := &request{}
	f.inflight[url] = req
	go f.run(url, flags, req)
	return nil, StatusPending
}

func (f *HTTPFetcher) Release(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done.Remove(url)
}

func (f *HTTPFetcher) run(url string, flags Flags, req *request) {
	if flags&Delay != 0 {
		f.delayTokens <- struct{}{}
		defer func() { <-f.delayTokens }()
	}

	res := f.get(url, flags)

	f.mu.Lock()
	req.res = res
	req.finished = true
	f.mu.Unlock()
}

func (f *HTTPFetcher) get(url string, flags Flags) result {
	start := time.Now()
	httpReq, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		f.logger.Warn("bad asset url", "url", url, "err", err)
		return result{code: http.StatusBadRequest}
	}
	if f.agent != "" {
		httpReq.Header.Set("User-Agent", f.agent)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		// Network errors are transient: report retry. The cached 598
		// expires after the TTL, then a later Fetch tries again.
		f.logger.Warn("asset fetch failed", "url", url, "err", err)
		return result{code: StatusRetry}
	}
	defer func() { _ = resp.Body.Close() }()

	observability.ObserveFetchLatency(resp.StatusCode, time.Since(start).Seconds())

	if resp.StatusCode/100 == 4 {
		if flags&Accept404 == 0 {
			f.logger.Warn("asset not found", "url", url, "status", resp.StatusCode)
		}
		return result{code: resp.StatusCode}
	}
	if resp.StatusCode/100 == 5 {
		return result{code: StatusRetry}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn("asset read failed", "url", url, "err", err)
		return result{code: StatusRetry}
	}
	return result{data: body, code: resp.StatusCode}
}
