package performance

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// VUScheduler manages a fixed pool of Virtual Users.
//
// It provides:
// - a pool pre-allocated to the schedule's maximum target
// - activation and deactivation of VUs to match a target count
// - shared HTTP client configuration
// - graceful drain and hard abort
//
// Activation reuses a VU that is still finishing its iteration before it
// wakes an idle one, so the number of VU goroutines never exceeds the pool
// size. Deactivation is last-in first-out.
type VUScheduler struct {
	run      *RunContext
	scenario *Scenario

	httpClientConfig HTTPClientConfig
	sharedClient     *http.Client

	vus []*VirtualUser

	mu     sync.Mutex
	active []*VirtualUser

	// hardCtx bounds requests and sleeps; it is only cancelled by Abort
	hardCtx    context.Context
	hardCancel context.CancelFunc

	wg sync.WaitGroup
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// UserAgent is set on requests that do not carry one
	UserAgent string

	// Headers are added to every request that does not set them
	Headers map[string]string

	// UseSharedClient indicates whether VUs share a single HTTP client
	UseSharedClient bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
		UserAgent:           "contactload/1.0",
		UseSharedClient:     true,
	}
}

// NewVUScheduler creates a scheduler with a pool of maxVUs idle VUs.
func NewVUScheduler(run *RunContext, scenario *Scenario, maxVUs int, httpConfig HTTPClientConfig) *VUScheduler {
	if maxVUs < 0 {
		maxVUs = 0
	}

	s := &VUScheduler{
		run:              run,
		scenario:         scenario,
		httpClientConfig: httpConfig,
		vus:              make([]*VirtualUser, maxVUs),
	}
	s.hardCtx, s.hardCancel = context.WithCancel(context.Background())

	if httpConfig.UseSharedClient {
		s.sharedClient = s.createHTTPClient()
	}

	for i := range s.vus {
		client := s.sharedClient
		if client == nil {
			client = s.createHTTPClient()
		}
		s.vus[i] = NewVirtualUser(i+1, scenario, client, run)
	}

	run.Builtin.VUsMax.Set(int64(maxVUs))
	return s
}

// createHTTPClient creates an HTTP client with the configured settings.
func (s *VUScheduler) createHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        s.httpClientConfig.MaxIdleConns,
		MaxIdleConnsPerHost: s.httpClientConfig.MaxIdleConnsPerHost,
		MaxConnsPerHost:     s.httpClientConfig.MaxConnsPerHost,
		IdleConnTimeout:     s.httpClientConfig.IdleConnTimeout,
		DisableKeepAlives:   s.httpClientConfig.DisableKeepAlives,
	}
	if s.httpClientConfig.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var rt http.RoundTripper = transport
	if s.httpClientConfig.UserAgent != "" || len(s.httpClientConfig.Headers) > 0 {
		rt = &defaultHeaders{
			next:      transport,
			userAgent: s.httpClientConfig.UserAgent,
			headers:   s.httpClientConfig.Headers,
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   s.httpClientConfig.Timeout,
	}
}

// defaultHeaders adds headers that a request does not set itself.
type defaultHeaders struct {
	next      http.RoundTripper
	userAgent string
	headers   map[string]string
}

func (d *defaultHeaders) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if d.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	for k, v := range d.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return d.next.RoundTrip(req)
}

// Start binds the scheduler to ctx. Cancelling ctx aborts every VU at once,
// like Abort.
func (s *VUScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hardCancel()
	s.hardCtx, s.hardCancel = context.WithCancel(ctx)
}

// MaxVUs returns the pool size.
func (s *VUScheduler) MaxVUs() int {
	return len(s.vus)
}

// ActiveCount returns the number of running VUs.
func (s *VUScheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Scale activates or deactivates VUs until target VUs are running. The
// target is clamped to the pool size. It returns the active count.
func (s *VUScheduler) Scale(target int) int {
	if target < 0 {
		target = 0
	}
	if target > len(s.vus) {
		target = len(s.vus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := len(s.active)
	switch {
	case target > current:
		s.activate(target - current)
	case target < current:
		for i := current - 1; i >= target; i-- {
			s.active[i].deactivate()
			s.active[i] = nil
		}
		s.active = s.active[:target]
	}

	n := len(s.active)
	s.run.Builtin.VUs.Set(int64(n))
	return n
}

// activate wakes n VUs: first those still finishing a deactivated
// iteration, then idle ones. Called with s.mu held.
func (s *VUScheduler) activate(n int) {
	for _, want := range []VUState{VUStateStopping, VUStateIdle} {
		for _, vu := range s.vus {
			if n == 0 {
				return
			}
			if vu.GetState() != want {
				continue
			}
			if vu.activate(func() { s.startVU(vu) }) {
				s.active = append(s.active, vu)
				n--
			}
		}
	}
}

func (s *VUScheduler) startVU(vu *VirtualUser) {
	ctx := s.hardCtx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		vu.loop(ctx)
	}()
}

// Drain deactivates every VU. Each one finishes its current iteration.
func (s *VUScheduler) Drain() {
	s.Scale(0)
}

// Wait blocks until every VU goroutine has exited or timeout elapses. It
// reports whether all of them exited. A non-positive timeout waits forever.
func (s *VUScheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Abort cancels in-flight requests and sleeps of every VU.
func (s *VUScheduler) Abort() {
	s.mu.Lock()
	cancel := s.hardCancel
	s.mu.Unlock()
	cancel()
}

// Shutdown drains the pool, waits up to timeout for iterations to finish,
// aborts whatever is left and releases idle connections. It reports
// whether the drain completed without an abort.
func (s *VUScheduler) Shutdown(timeout time.Duration) bool {
	s.Drain()

	graceful := s.Wait(timeout)
	if !graceful {
		s.run.Logger.Warn("graceful stop expired, aborting in-flight iterations",
			zap.Duration("graceful_stop", timeout))
		s.Abort()
		s.Wait(0)
	}
	s.Abort()

	if s.sharedClient != nil {
		s.sharedClient.CloseIdleConnections()
	}
	for _, vu := range s.vus {
		if vu.HTTPClient != s.sharedClient {
			vu.HTTPClient.CloseIdleConnections()
		}
	}
	return graceful
}

// Completed returns the total number of completed iterations.
func (s *VUScheduler) Completed() int64 {
	var total int64
	for _, vu := range s.vus {
		total += vu.Completed()
	}
	return total
}
