package goSession

import (
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/jwt"
)

// Claims is the claim set decoded from an access token.
type Claims = jwt.Claims

// AuditEvent is one session lifecycle record delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from a background goroutine.
type AuditSink = internalaudit.Sink

// Audit sinks shipped with the package.
type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	LogSink        = internalaudit.LogSink
)

var (
	NewChannelSink    = internalaudit.NewChannelSink
	NewJSONWriterSink = internalaudit.NewJSONWriterSink
	NewLogSink        = internalaudit.NewLogSink
)

// Audit event types.
const (
	AuditLogin            = internalaudit.EventLogin
	AuditLogout           = internalaudit.EventLogout
	AuditForcedLogout     = internalaudit.EventForcedLogout
	AuditRefresh          = internalaudit.EventRefresh
	AuditStartupDiscarded = internalaudit.EventStartupDiscarded
)
