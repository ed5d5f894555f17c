package authgate

import (
	"io"

	internalaudit "github.com/fieldsense/authgate/internal/audit"
)

// Principal is the authenticated identity handed to downstream
// collaborators. They receive this and an allow/deny decision, nothing
// else; signature verification and revocation are never re-done
// downstream.
type Principal struct {
	Subject     string
	TenantID    string
	Roles       []string
	Permissions []string
}

// TokenPair is an issued access+refresh credential pair sharing a
// rotation family.
type TokenPair struct {
	AccessToken  string
	AccessID     string
	RefreshToken string
	RefreshID    string
	FamilyID     string
}

// AuditEvent is the structured security-event record emitted by the
// engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink silently discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-backed AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded audit events to an io.Writer, one
// object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
