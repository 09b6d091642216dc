package goSession

import (
	"context"
	"strconv"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
)

// episodeObserver turns coordinator notifications into metrics, logs and
// audit events.
type episodeObserver struct {
	c *Client
}

func (o episodeObserver) EpisodeStarted(id string) {
	o.c.metrics.Inc(MetricRefreshEpisode)
	o.c.log.WithField("episode_id", id).Debug("goSession: refresh started")
}

func (o episodeObserver) WaiterQueued(id string, depth int) {
	o.c.metrics.Inc(MetricRefreshWaiterQueued)
	o.c.log.WithField("episode_id", id).WithField("waiters", depth).Debug("goSession: request queued behind refresh")
}

func (o episodeObserver) EpisodeSucceeded(id string, waiters int, elapsed time.Duration) {
	o.c.metrics.Inc(MetricRefreshSuccess)
	o.c.metrics.Observe(MetricRefreshLatency, elapsed)
	o.c.log.WithField("episode_id", id).
		WithField("waiters", waiters).
		WithField("elapsed", elapsed).
		Info("goSession: token refreshed")
	o.c.emitAudit(context.Background(), internalaudit.Event{
		EventType: internalaudit.EventRefresh,
		Subject:   o.c.Session().User.SubjectID(),
		EpisodeID: id,
		Success:   true,
		Metadata:  map[string]string{"waiters": strconv.Itoa(waiters)},
	})
}

func (o episodeObserver) EpisodeFailed(id string, waiters int, elapsed time.Duration, err error) {
	o.c.metrics.Inc(MetricRefreshFailure)
	o.c.metrics.Add(MetricRefreshWaiterRejected, uint64(waiters))
	o.c.metrics.Observe(MetricRefreshLatency, elapsed)
	o.c.log.WithError(err).
		WithField("episode_id", id).
		WithField("waiters", waiters).
		Warn("goSession: refresh failed, rejecting queued requests")
	o.c.emitAudit(context.Background(), internalaudit.Event{
		EventType: internalaudit.EventRefresh,
		EpisodeID: id,
		Error:     err.Error(),
		Metadata:  map[string]string{"waiters": strconv.Itoa(waiters)},
	})
}

func (o episodeObserver) Replayed(id string, err error) {
	o.c.metrics.Inc(MetricReplay)
	if err != nil {
		o.c.metrics.Inc(MetricReplayFailure)
		o.c.log.WithError(err).WithField("episode_id", id).Debug("goSession: replay failed")
	}
}

func (o episodeObserver) ReplaySkipped(id string, err error) {
	o.c.metrics.Inc(MetricReplaySkipped)
	o.c.log.WithError(err).WithField("episode_id", id).Debug("goSession: queued request abandoned before replay")
}

func (o episodeObserver) LoopPrevented() {
	o.c.metrics.Inc(MetricLoopPrevented)
	o.c.log.Debug("goSession: replayed request answered 401 again, returning it")
}

func (o episodeObserver) StaleTokenReplayed(err error) {
	o.c.metrics.Inc(MetricStaleTokenReplay)
	entry := o.c.log.WithField("stale", true)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("goSession: request sent with a replaced token, replayed without refresh")
}
