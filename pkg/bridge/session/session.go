// Package session holds the persisted voice-session model and the narrow
// collaborator interfaces the media bridges talk to.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Channel identifies which transport carried a session.
type Channel string

const (
	ChannelTelephony Channel = "telephony"
	ChannelBrowser   Channel = "browser"
)

// Status is the session lifecycle state. The only transition is
// active -> ended, once, idempotently.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Sender tags who produced a transcript line.
type Sender string

const (
	SenderCaller Sender = "caller"
	SenderAI     Sender = "ai"
	SenderSystem Sender = "system"
)

// VoiceSession is one bridge pair's persisted lifecycle record. Created
// once when the pair starts, mutated only to set ended at teardown, never
// deleted by this core.
type VoiceSession struct {
	ID        uuid.UUID
	Channel   Channel
	ClientID  *uuid.UUID
	UserID    *uuid.UUID
	CallSID   string
	StreamSID string
	FromPhone string
	Status    Status
	StartedAt time.Time
	EndedAt   *time.Time
	Metadata  map[string]any
}

// VoiceMessage is one transcript line. Append-only; ordering within a
// session is monotonic by creation time.
type VoiceMessage struct {
	ID             uuid.UUID
	VoiceSessionID uuid.UUID
	Sender         Sender
	Text           string
	CreatedAt      time.Time
}

// Identity is a resolved caller: the account a phone number maps to.
// Either field may be nil for an unlinked caller.
type Identity struct {
	ClientID *uuid.UUID
	UserID   *uuid.UUID
}

// Known reports whether the caller maps to a known account.
func (id Identity) Known() bool {
	return id.ClientID != nil
}

// NewSession describes a session to create.
type NewSession struct {
	Channel   Channel
	CallSID   string
	StreamSID string
	FromPhone string
	ClientID  *uuid.UUID
	UserID    *uuid.UUID
	Metadata  map[string]any
}

// Recorder persists session lifecycle and transcript lines. All calls are
// fire-and-forget relative to the audio path: bridges log failures and
// carry on.
type Recorder interface {
	// CreateSession creates exactly one VoiceSession row for a bridge pair.
	CreateSession(ctx context.Context, ns NewSession) (uuid.UUID, error)
	// AppendMessage appends one transcript line to the owning session.
	AppendMessage(ctx context.Context, sessionID uuid.UUID, sender Sender, text string) error
	// EndSession marks the session ended. Idempotent: a second call is a
	// no-op, not an error.
	EndSession(ctx context.Context, sessionID uuid.UUID) error
	// MirrorChatMessage copies a transcript line into a known client's
	// text-chat record.
	MirrorChatMessage(ctx context.Context, clientID uuid.UUID, sender Sender, text string) error
}

// Resolver maps a caller's phone number to a known account, creating a
// minimal placeholder when none exists. Best effort: on failure the bridge
// proceeds with an unlinked session.
type Resolver interface {
	Resolve(ctx context.Context, phone string) (Identity, error)
}
