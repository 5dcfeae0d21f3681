// Package directory adapts user existence checks. The workflow only needs a
// yes/no answer, so deployments without an identity backend run AllowAll and
// tests pin a Static set.
package directory

import (
	"context"

	id "remedia/pkg/domain"
)

// AllowAll accepts every user ID. Used when no identity backend is wired.
type AllowAll struct{}

func (AllowAll) Exists(ctx context.Context, userID id.UserID) (bool, error) {
	return !userID.IsNil(), nil
}

// Static answers from a fixed membership set.
type Static map[id.UserID]struct{}

func NewStatic(ids ...id.UserID) Static {
	s := make(Static, len(ids))
	for _, userID := range ids {
		s[userID] = struct{}{}
	}
	return s
}

func (s Static) Exists(ctx context.Context, userID id.UserID) (bool, error) {
	_, ok := s[userID]
	return ok, nil
}
