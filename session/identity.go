/*
Package session exchanges a pre-issued token for a server-side session.

PURPOSE:
  Login looks the token up (one join over users, zones and departments) and,
  on exactly one match, stores the identity under a random session id. The
  browser only holds a signed cookie carrying that id. The identity is never
  re-validated against the database while the session lives.

FLOW:
  Login(token)        -> Lookup -> Store.Save(id, identity) -> Signer.Sign(id)
  Authenticate(cookie)-> Signer.Parse -> Store.Load(id)
  Logout(cookie)      -> Signer.Parse -> Store.Delete(id)

STORES:
  - MemoryStore: Map with TTL and a background sweeper (single process)
  - RedisStore:  JSON value under "compras:session:<id>" with SET EX

SEE ALSO:
  - api/middleware.go: Puts the identity on the request context
  - store/sqlstore: Implements Lookup
*/
package session

import (
	"context"

	"github.com/consad/compras/requisition"
)

// Identity is everything a session knows about its user.
type Identity struct {
	UserID         int64  `json:"user_id"`
	UserName       string `json:"user_name"`
	ZoneID         int64  `json:"zone_id"`
	ZoneName       string `json:"zone_name"`
	DepartmentID   int64  `json:"department_id"`
	DepartmentName string `json:"department_name"`
}

// Owner returns the zone and department the user acts for.
func (i Identity) Owner() requisition.Owner {
	return requisition.Owner{ZoneID: i.ZoneID, DepartmentID: i.DepartmentID}
}

// Lookup finds the identities matching a token exactly.
type Lookup interface {
	IdentitiesByToken(ctx context.Context, token string) ([]Identity, error)
}

// =============================================================================
// REQUEST CONTEXT
// =============================================================================

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity of the request, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.UserID == 0 {
		return Identity{}, false
	}
	return id, true
}

// Require returns the identity of the request or ErrAuthRequired.
func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, ErrAuthRequired
	}
	return id, nil
}

// IsAuthenticated is true iff the context carries an identity with a user id.
func IsAuthenticated(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}
