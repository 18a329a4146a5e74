package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/pkg/jwt"
)

// TokenVerifier turns a bearer token into verified claims.
type TokenVerifier interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// Identity is the resolved caller of a request.
type Identity struct {
	UserID      string
	Email       string
	Role        user.Role
	IsSuspended bool
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == user.RoleAdmin
}

// Resolver maps bearer credentials to accounts. It never changes role,
// balance or suspension state; it only creates the account on first sight.
type Resolver struct {
	verifier TokenVerifier
	users    user.Repository
}

// NewResolver creates a resolver.
func NewResolver(verifier TokenVerifier, users user.Repository) *Resolver {
	return &Resolver{verifier: verifier, users: users}
}

// Resolve verifies the token and loads the account's current role.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := r.verifier.ValidateAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	u, err := r.users.EnsureUser(ctx, claims.Subject, claims.Email, claims.Name)
	if err != nil {
		if errors.Is(err, user.ErrInvalidID) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	return &Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Role:        u.Role,
		IsSuspended: u.IsSuspended,
	}, nil
}

// ResolveHeader extracts the token from an Authorization header value.
func (r *Resolver) ResolveHeader(ctx context.Context, header string) (*Identity, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return nil, ErrUnauthenticated
	}
	return r.Resolve(ctx, token)
}

// RequireRole fails with ErrForbidden unless id holds role.
func RequireRole(id *Identity, role user.Role) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if id.Role != role {
		return ErrForbidden
	}
	return nil
}

// SelfAction names an admin action that may not target the actor.
type SelfAction string

const (
	ActionDemote  SelfAction = "demote"
	ActionSuspend SelfAction = "suspend"
)

// GuardSelfAction rejects an admin demoting or suspending their own account.
// It applies regardless of role checks.
func GuardSelfAction(actorID, targetID string, action SelfAction) error {
	if actorID == "" || actorID != targetID {
		return nil
	}
	switch action {
	case ActionDemote:
		return fmt.Errorf("%w: cannot change your own role", ErrInvalidOperation)
	case ActionSuspend:
		return fmt.Errorf("%w: cannot suspend your own account", ErrInvalidOperation)
	}
	return nil
}
