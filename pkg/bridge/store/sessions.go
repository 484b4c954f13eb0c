package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/craftline/voicebridge/pkg/bridge/session"
	"github.com/craftline/voicebridge/pkg/core"
)

// CreateSession inserts a voice session row and returns its id.
func (s *Store) CreateSession(ctx context.Context, ns session.NewSession) (uuid.UUID, error) {
	id := uuid.New()
	meta, err := metadataJSON(ns.Metadata)
	if err != nil {
		return uuid.Nil, core.NewPersistenceError(fmt.Sprintf("create session: %v", err))
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO voice_sessions
			(id, channel, client_id, user_id, call_sid, stream_sid, from_phone, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8)`,
		id, string(ns.Channel), ns.ClientID, ns.UserID,
		textOrNil(ns.CallSID), textOrNil(ns.StreamSID), textOrNil(ns.FromPhone),
		meta,
	)
	if err != nil {
		return uuid.Nil, core.NewPersistenceError(fmt.Sprintf("create session: %v", err))
	}
	return id, nil
}

// AppendMessage records one transcript line for a session.
func (s *Store) AppendMessage(ctx context.Context, sessionID uuid.UUID, sender session.Sender, text string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO voice_messages (id, voice_session_id, sender, text)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), sessionID, string(sender), text,
	)
	if err != nil {
		return core.NewPersistenceError(fmt.Sprintf("append message: %v", err))
	}
	return nil
}

// EndSession marks a session ended. Calling it on an already ended
// session is a no-op, so both the defer path and the normal shutdown
// path of a bridge may call it.
func (s *Store) EndSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE voice_sessions
		SET status = 'ended', ended_at = now()
		WHERE id = $1 AND status = 'active'`,
		sessionID,
	)
	if err != nil {
		return core.NewPersistenceError(fmt.Sprintf("end session: %v", err))
	}
	return nil
}

// MirrorChatMessage copies a transcript line into the client's regular
// chat history so voice conversations show up alongside text ones.
func (s *Store) MirrorChatMessage(ctx context.Context, clientID uuid.UUID, sender session.Sender, text string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, client_id, sender, body)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), clientID, string(sender), text,
	)
	if err != nil {
		return core.NewPersistenceError(fmt.Sprintf("mirror chat message: %v", err))
	}
	return nil
}
