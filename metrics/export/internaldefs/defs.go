package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef maps one [goSession.MetricID] to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef maps one histogram [goSession.MetricID] to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Logins that installed a token."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Rejected or failed logins."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logouts, explicit and forced."},
	{ID: goSession.MetricLogoutRemoteFailure, Name: "gosession_logout_remote_failure_total", Help: "Backend logout calls that failed and were ignored."},
	{ID: goSession.MetricForcedLogout, Name: "gosession_forced_logout_total", Help: "Logouts caused by a failed refresh."},
	{ID: goSession.MetricRefreshEpisode, Name: "gosession_refresh_episode_total", Help: "Refresh episodes started."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Refresh episodes that installed a new token."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Refresh episodes that ended the session."},
	{ID: goSession.MetricRefreshWaiterQueued, Name: "gosession_refresh_waiter_queued_total", Help: "Requests queued behind an in-flight refresh."},
	{ID: goSession.MetricRefreshWaiterRejected, Name: "gosession_refresh_waiter_rejected_total", Help: "Queued requests rejected by a failed refresh."},
	{ID: goSession.MetricReplay, Name: "gosession_replay_total", Help: "Requests replayed with a refreshed token."},
	{ID: goSession.MetricReplayFailure, Name: "gosession_replay_failure_total", Help: "Replays that failed in transport."},
	{ID: goSession.MetricReplaySkipped, Name: "gosession_replay_skipped_total", Help: "Queued requests abandoned by their caller before replay."},
	{ID: goSession.MetricLoopPrevented, Name: "gosession_loop_prevented_total", Help: "Replayed requests answered 401 again and returned without a second refresh."},
	{ID: goSession.MetricStaleTokenReplay, Name: "gosession_stale_token_replay_total", Help: "401s on requests sent with a replaced token, replayed without a refresh."},
	{ID: goSession.MetricPersistenceFailure, Name: "gosession_persistence_failure_total", Help: "Token persistence errors absorbed by the store."},
	{ID: goSession.MetricStartupTokenDiscarded, Name: "gosession_startup_token_discarded_total", Help: "Persisted tokens discarded at startup."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Refresh episode duration."},
}

// HistogramBounds are the upper bounds of the eight latency buckets, in
// seconds, in Prometheus "le" form.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket for exporters that flatten buckets
// into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
