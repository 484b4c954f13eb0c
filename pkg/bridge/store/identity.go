package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jackc/pgx/v5"

	"github.com/craftline/voicebridge/pkg/bridge/session"
	"github.com/craftline/voicebridge/pkg/core"
)

// Resolve looks up a caller's phone number against the clients table.
// Unknown numbers get a placeholder client row so repeat calls from the
// same number resolve to the same identity.
func (s *Store) Resolve(ctx context.Context, phone string) (session.Identity, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return session.Identity{}, nil
	}

	var clientID uuid.UUID
	var userID *uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id FROM clients WHERE phone = $1`,
		normalized,
	).Scan(&clientID, &userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.createPlaceholderClient(ctx, normalized)
	}
	if err != nil {
		return session.Identity{}, core.NewPersistenceError(fmt.Sprintf("resolve caller: %v", err))
	}
	return session.Identity{ClientID: &clientID, UserID: userID}, nil
}

// createPlaceholderClient inserts a minimal client row for a number we
// have never seen. The upsert handles two calls from the same new number
// racing each other.
func (s *Store) createPlaceholderClient(ctx context.Context, phone string) (session.Identity, error) {
	var clientID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clients (id, phone, display_name)
		VALUES ($1, $2, $2)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id`,
		uuid.New(), phone,
	).Scan(&clientID)
	if err != nil {
		return session.Identity{}, core.NewPersistenceError(fmt.Sprintf("create placeholder client: %v", err))
	}
	return session.Identity{ClientID: &clientID}, nil
}

// NormalizePhone reduces a dialed number to the E.164-ish form stored in
// the clients table: digits only, a single leading +, and a +1 prefix
// assumed for bare 10-digit US numbers.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	n := b.String()
	switch {
	case n == "" || n == "+":
		return ""
	case strings.HasPrefix(n, "+"):
		return n
	case len(n) == 10:
		return "+1" + n
	case len(n) == 11 && strings.HasPrefix(n, "1"):
		return "+" + n
	default:
		return "+" + n
	}
}
