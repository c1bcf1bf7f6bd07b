// Package previewcache is the single-flight, priority-aware, bounded
// concurrency fetch service the interactive picker's preview pane is built
// on. It coordinates a human-driven fuzzy picker (which spawns one preview
// subprocess per highlight change) with an archive repository that only
// tolerates one reader at a time.
//
// The daemon shape (listener + accept loop + fixed worker pool + newline-
// JSON request/response framing) is grounded on the teacher's
// internal/vm/pool_linux.go Unix-socket pool daemon. The queue and
// single-flight semantics are this package's own, since no pack dependency
// offers a priority-upgrade-in-place single-flight primitive.
//
// A demand request's wait_ms does double duty: it bounds how long
// GetPreview waits for a reply, and it also sets the deadline after which
// lock-contention retries stop. A very short wait_ms therefore leaves
// almost no room for lock retries.
package previewcache

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/homelab-ops/microvm-backup/internal/archive"
	"github.com/homelab-ops/microvm-backup/internal/logging"
	"github.com/homelab-ops/microvm-backup/internal/manifest"
)

// EnvSocketName is the environment variable the server sets before
// launching the picker, and that the preview child process reads to find
// the cache's socket.
const EnvSocketName = "MICROVM_BACKUP_PREVIEW_SOCKET"

const (
	retryBase = 80 * time.Millisecond
	retryCap  = 300 * time.Millisecond
)

// Status is a preview record's outcome.
type Status string

const (
	StatusReady   Status = "ready"
	StatusLoading Status = "loading"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Result is one outcome of a preview fetch: only StatusReady results are
// cached in records.
type Result struct {
	Status Status
	Text   string
	Info   archive.Info
}

// promise is the in-flight handle concurrent callers of the same archive
// share. done is closed exactly once, when the fetch concludes.
type promise struct {
	done   chan struct{}
	result Result
}

// Server is the preview cache. The queue and cache fields are guarded by
// mu; listener and socketName are set once by Start, client and vm once at
// construction, and none of those four is mutated afterwards.
type Server struct {
	mu   sync.Mutex
	cond *sync.Cond

	records         map[string]Result
	inflight        map[string]*promise
	demandDeadlines map[string]time.Time
	demandQueue     []string
	prefetchQueue   []string
	queuedDemand    map[string]bool
	queuedPrefetch  map[string]bool
	activeDemand    int
	stopped         bool

	listener   *net.UnixListener
	socketName string
	client     archive.Client
	vm         manifest.VMConfig

	wg sync.WaitGroup
}

// New builds a Server bound to a single VM's archive repository. Call
// Start before serving requests.
func New(client archive.Client, vm manifest.VMConfig) *Server {
	s := &Server{
		records:         make(map[string]Result),
		inflight:        make(map[string]*promise),
		demandDeadlines: make(map[string]time.Time),
		queuedDemand:    make(map[string]bool),
		queuedPrefetch:  make(map[string]bool),
		client:          client,
		vm:              vm,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SocketName returns the abstract-namespace (or, on non-Linux, temp-file)
// socket name to export via EnvSocketName. Valid only after Start.
func (s *Server) SocketName() string {
	return s.socketName
}

// Start binds the listener, then spawns the accept loop and the two fixed
// workers. The socket name is a random per-process token so concurrent
// invocations never collide.
func (s *Server) Start(ctx context.Context) error {
	token := uuid.NewString()
	listener, name, err := listen(token)
	if err != nil {
		return fmt.Errorf("binding preview socket: %w", err)
	}
	s.listener = listener
	s.socketName = name

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	for i := 0; i < 2; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	return nil
}

// Stop sets the one-shot cancellation flag, closes the socket, wakes all
// waiters, and joins the accept loop and workers with a short deadline.
// In-flight archive-tool subprocesses are not killed; per spec, shutdown
// join is best-effort.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	closeListenResource(s.socketName)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logging.Log.Warn("preview cache shutdown join timed out; workers left running")
	}
}

// Prefetch enqueues archive for a best-effort, non-retrying, uncached-on-
// failure fetch. Silently rejected when the server is stopped, the archive
// is already cached, in flight or queued for prefetch, or any demand fetch
// is queued or running: caller must not treat rejection as an error.
func (s *Server) Prefetch(archiveName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefetchLocked(archiveName)
}

func (s *Server) prefetchLocked(archiveName string) {
	if s.stopped {
		return
	}
	if _, cached := s.records[archiveName]; cached {
		return
	}
	if _, inflight := s.inflight[archiveName]; inflight {
		return
	}
	if s.queuedPrefetch[archiveName] {
		return
	}
	if s.activeDemand > 0 || len(s.demandQueue) > 0 {
		return
	}

	s.inflight[archiveName] = &promise{done: make(chan struct{})}
	s.prefetchQueue = append(s.prefetchQueue, archiveName)
	s.queuedPrefetch[archiveName] = true
	s.cond.Broadcast()
}

// PrefetchArchives is a convenience for seeding many candidates at once,
// e.g. every archive name surfaced by the picker on launch.
func (s *Server) PrefetchArchives(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.prefetchLocked(n)
	}
}

// GetPreview serves a demand request. wait_ms == 0 returns loading
// immediately (without canceling the underlying fetch, which continues in
// the background, scheduled as demand). wait_ms > 0 waits up to that many
// milliseconds for the single-flight fetch to finish, returning timeout on
// expiry.
func (s *Server) GetPreview(archiveName string, waitMs int) Result {
	now := time.Now()
	s.mu.Lock()

	if rec, ok := s.records[archiveName]; ok {
		s.mu.Unlock()
		return rec
	}

	p, alreadyInflight := s.inflight[archiveName]
	if !alreadyInflight {
		p = &promise{done: make(chan struct{})}
		s.inflight[archiveName] = p
	}

	deadline := now.Add(time.Duration(waitMs) * time.Millisecond)
	if existing, ok := s.demandDeadlines[archiveName]; !ok || deadline.After(existing) {
		s.demandDeadlines[archiveName] = deadline
	}

	if s.queuedPrefetch[archiveName] {
		s.removeFromPrefetchLocked(archiveName)
		s.demandQueue = append(s.demandQueue, archiveName)
		s.queuedDemand[archiveName] = true
	} else if !alreadyInflight {
		s.demandQueue = append(s.demandQueue, archiveName)
		s.queuedDemand[archiveName] = true
	}
	// If alreadyInflight and not queued anywhere, the archive is currently
	// executing; no requeue needed, just wait on the shared promise.
	s.cond.Broadcast()
	s.mu.Unlock()

	if waitMs <= 0 {
		return Result{Status: StatusLoading, Text: fmt.Sprintf("Loading archive info for %s...", archiveName)}
	}

	select {
	case <-p.done:
		return p.result
	case <-time.After(time.Until(deadline)):
		return Result{Status: StatusTimeout, Text: fmt.Sprintf("Loading archive info for %s...", archiveName)}
	}
}

func (s *Server) removeFromPrefetchLocked(name string) {
	for i, n := range s.prefetchQueue {
		if n == name {
			s.prefetchQueue = append(s.prefetchQueue[:i], s.prefetchQueue[i+1:]...)
			break
		}
	}
	delete(s.queuedPrefetch, name)
}

// worker drains the demand queue first; it only takes a prefetch item when
// no demand is pending or executing, per the priority invariant.
func (s *Server) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for !s.stopped && len(s.demandQueue) == 0 && !(s.activeDemand == 0 && len(s.prefetchQueue) > 0) {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}

		var name string
		var isDemand bool
		if len(s.demandQueue) > 0 {
			name = s.demandQueue[0]
			s.demandQueue = s.demandQueue[1:]
			delete(s.queuedDemand, name)
			isDemand = true
			s.activeDemand++
		} else if s.activeDemand == 0 && len(s.prefetchQueue) > 0 {
			name = s.prefetchQueue[0]
			s.prefetchQueue = s.prefetchQueue[1:]
			delete(s.queuedPrefetch, name)
			isDemand = false
		} else {
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		if isDemand {
			s.runDemand(ctx, name)
		} else {
			s.runPrefetch(ctx, name)
		}
	}
}

func (s *Server) runDemand(ctx context.Context, archiveName string) {
	attempt := 0
	for {
		info, err := s.client.FetchArchiveInfo(ctx, s.vm, archiveName)
		if err == nil {
			result := Result{Status: StatusReady, Text: s.client.FormatArchiveDetails(info), Info: info}
			s.publish(archiveName, result, true)
			s.finishDemand()
			return
		}

		s.mu.Lock()
		deadline, hasDeadline := s.demandDeadlines[archiveName]
		s.mu.Unlock()

		if archive.IsLockFailure(err) && hasDeadline && time.Now().Before(deadline) {
			remaining := time.Until(deadline)
			delay := retryBase * time.Duration(1<<uint(attempt))
			if delay > retryCap {
				delay = retryCap
			}
			if delay > remaining {
				delay = remaining
			}
			jitter := time.Duration(rand.Float64() * 0.25 * float64(delay))
			time.Sleep(delay + jitter)
			attempt++
			continue
		}

		result := Result{Status: StatusError, Text: err.Error()}
		s.publish(archiveName, result, false)
		s.finishDemand()
		return
	}
}

func (s *Server) runPrefetch(ctx context.Context, archiveName string) {
	info, err := s.client.FetchArchiveInfo(ctx, s.vm, archiveName)
	if err != nil {
		// Failed prefetches are forgotten entirely: no caching, no retry, so
		// a later demand request tries again from scratch. Still publish
		// through the normal path (uncached) so a demand request that
		// attached to this prefetch's in-flight promise while it was running
		// observes the error immediately instead of blocking out to its own
		// wait_ms and only recovering on its next query.
		s.publish(archiveName, Result{Status: StatusError, Text: err.Error()}, false)
		return
	}
	result := Result{Status: StatusReady, Text: s.client.FormatArchiveDetails(info), Info: info}
	s.publish(archiveName, result, true)
}

// publish writes the outcome into records (if cacheable) under the mutex,
// removes bookkeeping entries, then fulfils the shared promise outside the
// lock: a late waiter that observes the promise closing is guaranteed to
// find the record already visible to a subsequent query.
func (s *Server) publish(archiveName string, result Result, cacheable bool) {
	s.mu.Lock()
	p := s.inflight[archiveName]
	if cacheable {
		s.records[archiveName] = result
	}
	delete(s.inflight, archiveName)
	delete(s.demandDeadlines, archiveName)
	s.mu.Unlock()

	if p != nil {
		p.result = result
		close(p.done)
	}
}

func (s *Server) finishDemand() {
	s.mu.Lock()
	s.activeDemand--
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Request is one line of the RPC wire format.
type Request struct {
	Op      string `json:"op"`
	Archive string `json:"archive"`
	WaitMs  int    `json:"wait_ms"`
}

// Response is one line of the RPC wire format.
type Response struct {
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
}

// acceptLoop polls Accept with a 200ms deadline so it periodically wakes to
// observe stop without needing the listener closed out from under it; Stop
// also closes the listener directly as a belt-and-suspenders unblock.
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.listener.SetDeadline(time.Now().Add(200 * time.Millisecond))
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection serves exactly one request per connection: read one
// newline-terminated JSON line, write one newline-terminated JSON line,
// close.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Minute))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeResponse(conn, Response{Status: "error", Text: "invalid request JSON"})
		return
	}

	switch req.Op {
	case "prefetch":
		s.Prefetch(req.Archive)
		s.writeResponse(conn, Response{Status: "ok"})
	case "get_preview":
		result := s.GetPreview(req.Archive, req.WaitMs)
		s.writeResponse(conn, Response{Status: string(result.Status), Text: result.Text})
	default:
		s.writeResponse(conn, Response{Status: "error", Text: fmt.Sprintf("unknown op: %s", req.Op)})
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}
