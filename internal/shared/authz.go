package shared

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermissionDenied indicates the actor lacks the required capability.
var ErrPermissionDenied = errors.New("permission denied")

// Authorizer answers capability checks for an actor. Implementations are
// injected into services so ledger mechanics stay free of permission tables.
type Authorizer interface {
	Allow(ctx context.Context, actor Actor, capability string) error
}

// StaticAuthorizer grants capabilities per role from a fixed table.
type StaticAuthorizer struct {
	grants map[string]map[string]bool
}

// NewStaticAuthorizer builds an authorizer from role -> capabilities.
func NewStaticAuthorizer(grants map[string][]string) *StaticAuthorizer {
	table := make(map[string]map[string]bool, len(grants))
	for role, caps := range grants {
		set := make(map[string]bool, len(caps))
		for _, c := range caps {
			set[c] = true
		}
		table[role] = set
	}
	return &StaticAuthorizer{grants: table}
}

// Allow implements Authorizer.
func (a *StaticAuthorizer) Allow(_ context.Context, actor Actor, capability string) error {
	if a == nil {
		return errors.New("authorizer not initialised")
	}
	if caps, ok := a.grants[actor.Role]; ok && caps[capability] {
		return nil
	}
	return fmt.Errorf("%w: role %q lacks %q", ErrPermissionDenied, actor.Role, capability)
}

// AllowAll grants every capability. Intended for tests and single-operator
// deployments.
type AllowAll struct{}

// Allow implements Authorizer.
func (AllowAll) Allow(context.Context, Actor, string) error { return nil }
