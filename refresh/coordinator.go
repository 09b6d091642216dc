package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRefreshFailed is returned to every caller of a failed refresh episode.
var ErrRefreshFailed = errors.New("refresh failed")

var (
	errEmptyToken     = errors.New("refresh returned an empty token")
	errSessionEnded   = errors.New("session ended while the refresh was in flight")
	errDepsGeneration = errors.New("refresh: Generation and InstallIf must be set together")
)

// Phase is the coordinator state.
type Phase int

const (
	// Idle means no refresh call is in flight.
	Idle Phase = iota
	// Refreshing means exactly one refresh call is in flight.
	Refreshing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// ReplayFunc resends a captured request carrying token and returns its result.
type ReplayFunc func(ctx context.Context, token string) (*http.Response, error)

// Observer receives episode lifecycle notifications. Implementations must not
// block and must not call back into the Coordinator.
type Observer interface {
	EpisodeStarted(id string)
	WaiterQueued(id string, depth int)
	EpisodeSucceeded(id string, waiters int, elapsed time.Duration)
	EpisodeFailed(id string, waiters int, elapsed time.Duration, err error)
	Replayed(id string, err error)
	ReplaySkipped(id string, err error)
	LoopPrevented()
	// StaleTokenReplayed reports a 401 for a request sent with a token that
	// had already been replaced. The request was replayed without a refresh.
	StaleTokenReplayed(err error)
}

// Deps wires the coordinator to the rest of the session.
type Deps struct {
	// Refresh calls the refresh endpoint and returns the new access token.
	Refresh func(ctx context.Context) (string, error)
	// Install makes a freshly issued token current.
	Install func(ctx context.Context, token string)
	// Current returns the installed token. When set, a 401 for a request sent
	// with an older token is replayed with the current one instead of
	// starting a refresh.
	Current func() string
	// Generation and InstallIf, when set, take over from Install. The
	// generation is read when an episode starts, and the refresh result is
	// installed only if it is unchanged by then. A logout or login that lands
	// mid-episode therefore wins over the refresh.
	Generation func() uint64
	InstallIf  func(ctx context.Context, token string, generation uint64) bool
	// Discard receives a refresh result dropped because the session ended
	// mid-episode, so the backend session it opened can be revoked.
	Discard func(ctx context.Context, token string)
	// ForceLogout clears the session after a failed refresh.
	ForceLogout func(ctx context.Context, cause error)
	// Timeout bounds the refresh call. Zero means no coordinator timeout.
	Timeout  time.Duration
	NewID    func() string
	Observer Observer
}

type outcome struct {
	resp  *http.Response
	token string
	err   error
}

type pending struct {
	ctx    context.Context
	replay ReplayFunc
	done   chan outcome
}

// Coordinator single-flights refresh calls and replays the requests that
// failed while one was in flight. It is safe for concurrent use.
//
// The request that started an episode is replayed on its caller's goroutine. The
// waiters are replayed one after another in arrival order on a single
// background goroutine, each under its own context. A waiter replay that
// never returns therefore holds back the waiters behind it, so the base
// transport or every caller context should carry a deadline.
type Coordinator struct {
	deps Deps

	mu      sync.Mutex
	phase   Phase
	episode string
	waiters []*pending

	replays sync.WaitGroup
}

// New validates deps and returns an Idle coordinator.
func New(deps Deps) (*Coordinator, error) {
	if deps.Refresh == nil {
		return nil, errors.New("refresh: Refresh dependency required")
	}
	if (deps.Generation == nil) != (deps.InstallIf == nil) {
		return nil, errDepsGeneration
	}
	if deps.Install == nil && deps.InstallIf == nil {
		return nil, errors.New("refresh: Install dependency required")
	}
	if deps.Timeout < 0 {
		return nil, errors.New("refresh: Timeout must be >= 0")
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Coordinator{deps: deps}, nil
}

// Phase reports the current state.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Pending reports how many callers are queued behind the in-flight refresh.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Handle inspects a response and recovers from 401 by refreshing once and
// replaying. sent is the token the request carried. Non-401 responses, and
// 401s on requests that were already replayed, are returned unchanged. When
// Handle takes over a 401 it closes resp and returns the replay result
// instead.
func (c *Coordinator) Handle(ctx context.Context, resp *http.Response, retried bool, sent string, replay ReplayFunc) (*http.Response, error) {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if retried || replay == nil {
		c.deps.Observer.LoopPrevented()
		return resp, nil
	}

	discard(resp)
	o := c.run(ctx, sent, replay)
	return o.resp, o.err
}

// Refresh runs a refresh outside the 401 path. It joins the in-flight episode
// when there is one, so manual and automatic refreshes share one call.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	o := c.run(ctx, "", nil)
	return o.token, o.err
}

// Wait blocks until background waiter replays of finished episodes are done.
func (c *Coordinator) Wait() {
	c.replays.Wait()
}

func (c *Coordinator) run(ctx context.Context, sent string, replay ReplayFunc) outcome {
	c.mu.Lock()
	// Install happens before the phase returns to Idle, so an Idle
	// coordinator with a different current token means the 401 answered a
	// token that an earlier episode already replaced.
	if c.phase == Idle && replay != nil && c.deps.Current != nil {
		if current := c.deps.Current(); current != "" && current != sent {
			c.mu.Unlock()
			resp, err := replay(ctx, current)
			c.deps.Observer.StaleTokenReplayed(err)
			return outcome{resp: resp, token: current, err: err}
		}
	}
	if c.phase == Refreshing {
		p := &pending{ctx: ctx, replay: replay, done: make(chan outcome, 1)}
		c.waiters = append(c.waiters, p)
		id, depth := c.episode, len(c.waiters)
		c.mu.Unlock()

		c.deps.Observer.WaiterQueued(id, depth)
		select {
		case o := <-p.done:
			return o
		case <-ctx.Done():
			return outcome{err: ctx.Err()}
		}
	}

	id := c.deps.NewID()
	c.phase = Refreshing
	c.episode = id
	var gen uint64
	if c.deps.Generation != nil {
		gen = c.deps.Generation()
	}
	c.mu.Unlock()

	return c.lead(ctx, id, gen, replay)
}

func (c *Coordinator) lead(ctx context.Context, id string, gen uint64, replay ReplayFunc) outcome {
	c.deps.Observer.EpisodeStarted(id)
	started := time.Now()

	// One caller giving up must not fail the episode for everyone else.
	detached := context.WithoutCancel(ctx)
	rctx, cancel := detached, context.CancelFunc(func() {})
	if c.deps.Timeout > 0 {
		rctx, cancel = context.WithTimeout(detached, c.deps.Timeout)
	}
	token, err := c.deps.Refresh(rctx)
	cancel()
	if err == nil && token == "" {
		err = errEmptyToken
	}

	if err == nil {
		token, err = c.install(detached, token, gen)
	} else if c.superseded(gen) {
		// Logging out here would end the session that replaced this one.
		token, err = c.adopt(err)
	} else if c.deps.ForceLogout != nil {
		c.deps.ForceLogout(detached, fmt.Errorf("%w: %w", ErrRefreshFailed, err))
	}

	if err != nil {
		failure := fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		waiters := c.finish()
		c.deps.Observer.EpisodeFailed(id, len(waiters), time.Since(started), failure)
		for _, w := range waiters {
			w.done <- outcome{err: failure}
		}
		return outcome{err: failure}
	}

	waiters := c.finish()
	c.deps.Observer.EpisodeSucceeded(id, len(waiters), time.Since(started))

	own := outcome{token: token}
	if replay != nil {
		own = c.replay(ctx, id, replay, token)
	}

	if len(waiters) > 0 {
		c.replays.Add(1)
		go func() {
			defer c.replays.Done()
			for _, w := range waiters {
				w.done <- c.resolve(id, w, token)
			}
		}()
	}

	return own
}

// install makes token current and returns the token callers should replay
// with. When the session moved on since the episode started the refresh
// result is dropped: a newer login wins, a logout fails the episode.
func (c *Coordinator) install(ctx context.Context, token string, gen uint64) (string, error) {
	if c.deps.InstallIf == nil {
		c.deps.Install(ctx, token)
		return token, nil
	}
	if c.deps.InstallIf(ctx, token, gen) {
		return token, nil
	}
	current, err := c.adopt(nil)
	if err != nil && c.deps.Discard != nil {
		c.deps.Discard(ctx, token)
	}
	return current, err
}

// adopt resolves an episode whose session moved on: the current token, if
// any, is handed to the callers in place of the refresh result.
func (c *Coordinator) adopt(cause error) (string, error) {
	if c.deps.Current != nil {
		if current := c.deps.Current(); current != "" {
			return current, nil
		}
	}
	if cause != nil {
		return "", fmt.Errorf("%w: %w", errSessionEnded, cause)
	}
	return "", errSessionEnded
}

func (c *Coordinator) superseded(gen uint64) bool {
	return c.deps.Generation != nil && c.deps.Generation() != gen
}

// finish returns the coordinator to Idle and hands back the queued waiters.
func (c *Coordinator) finish() []*pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.waiters
	c.waiters = nil
	c.phase = Idle
	c.episode = ""
	return waiters
}

func (c *Coordinator) resolve(id string, w *pending, token string) outcome {
	if w.replay == nil {
		return outcome{token: token}
	}
	if err := w.ctx.Err(); err != nil {
		c.deps.Observer.ReplaySkipped(id, err)
		return outcome{err: err}
	}
	o := c.replay(w.ctx, id, w.replay, token)
	if w.ctx.Err() != nil && o.resp != nil {
		// The waiter already returned; nobody will read this body.
		discard(o.resp)
		o.resp = nil
	}
	return o
}

func (c *Coordinator) replay(ctx context.Context, id string, fn ReplayFunc, token string) outcome {
	resp, err := fn(ctx, token)
	c.deps.Observer.Replayed(id, err)
	return outcome{resp: resp, token: token, err: err}
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}

type nopObserver struct{}

func (nopObserver) EpisodeStarted(string) {}
func (nopObserver) WaiterQueued(string, int) {}
func (nopObserver) EpisodeSucceeded(string, int, time.Duration) {}
func (nopObserver) EpisodeFailed(string, int, time.Duration, error) {}
func (nopObserver) Replayed(string, error) {}
func (nopObserver) ReplaySkipped(string, error) {}
func (nopObserver) LoopPrevented() {}
func (nopObserver) StaleTokenReplayed(error) {}
