package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Resolver turns tokens into sessions and cookies back into identities.
type Resolver struct {
	lookup Lookup
	store  Store
	signer *Signer
	ttl    time.Duration
}

func NewResolver(lookup Lookup, store Store, signer *Signer, ttl time.Duration) *Resolver {
	return &Resolver{lookup: lookup, store: store, signer: signer, ttl: ttl}
}

// TTL is the lifetime of new sessions.
func (r *Resolver) TTL() time.Duration { return r.ttl }

// Login creates a session for the single user holding token.
// Zero or several matches yield ErrInvalidToken and no session.
func (r *Resolver) Login(ctx context.Context, token string) (Identity, string, error) {
	if token == "" {
		return Identity{}, "", ErrInvalidToken
	}

	ids, err := r.lookup.IdentitiesByToken(ctx, token)
	if err != nil {
		return Identity{}, "", err
	}
	if len(ids) != 1 {
		if len(ids) > 1 {
			log.Warn().Int("matches", len(ids)).Msg("login token matches several users")
		}
		return Identity{}, "", ErrInvalidToken
	}
	identity := ids[0]

	sessionID := uuid.NewString()
	if err := r.store.Save(ctx, sessionID, identity, r.ttl); err != nil {
		return Identity{}, "", fmt.Errorf("save session: %w", err)
	}

	cookie, err := r.signer.Sign(sessionID, r.ttl)
	if err != nil {
		_ = r.store.Delete(ctx, sessionID)
		return Identity{}, "", err
	}

	log.Info().
		Int64("user_id", identity.UserID).
		Int64("zone_id", identity.ZoneID).
		Int64("department_id", identity.DepartmentID).
		Msg("session started")
	return identity, cookie, nil
}

// Authenticate returns the identity of the session named by the cookie.
func (r *Resolver) Authenticate(ctx context.Context, cookie string) (Identity, error) {
	sessionID, err := r.signer.Parse(cookie)
	if err != nil {
		return Identity{}, err
	}
	return r.store.Load(ctx, sessionID)
}

// Logout removes the session named by the cookie. An invalid cookie or a
// session that no longer exists is not an error.
func (r *Resolver) Logout(ctx context.Context, cookie string) error {
	sessionID, err := r.signer.Parse(cookie)
	if errors.Is(err, ErrInvalidCookie) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.store.Delete(ctx, sessionID)
}
