// Package access decides whether an identity may act on a file resource.
package access

import (
	"context"
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/cutty/cutty/core/security/identity"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Resource is the target of an access decision. An empty OwnerID means the
// owner is unknown.
type Resource struct {
	ID      string
	OwnerID string
}

// Authorizer answers "may this identity do this to this resource".
type Authorizer interface {
	Can(ctx context.Context, id identity.Identity, action Action, res Resource) (bool, error)
}

// ownerSubject is the policy subject for owner rules; it is never a role.
const ownerSubject = "owner"

// Owners act on their own files; the admin role acts on anything. The
// anonymous subject never matches an owner rule.
const modelText = `
[request_definition]
r = sub, role, owner, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (p.sub == "owner" && r.sub != "anonymous" && r.owner != "" && r.sub == r.owner && keyMatch(r.act, p.act)) || (p.sub == r.role && keyMatch(r.act, p.act))
`

// CasbinAuthorizer evaluates decisions with a casbin enforcer.
type CasbinAuthorizer struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

func NewCasbinAuthorizer() (*CasbinAuthorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("access model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("access enforcer: %w", err)
	}
	rules := [][]string{
		{ownerSubject, string(ActionRead)},
		{ownerSubject, string(ActionWrite)},
		{ownerSubject, string(ActionDelete)},
		{identity.RoleAdmin, "*"},
	}
	for _, rule := range rules {
		if _, err := enforcer.AddPolicy(rule[0], rule[1]); err != nil {
			return nil, fmt.Errorf("access policy %v: %w", rule, err)
		}
	}
	return &CasbinAuthorizer{enforcer: enforcer}, nil
}

// Grant adds a role-wide rule, e.g. Grant("auditor", ActionRead).
func (a *CasbinAuthorizer) Grant(role string, action Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.enforcer.AddPolicy(role, string(action))
	return err
}

func (a *CasbinAuthorizer) Can(_ context.Context, id identity.Identity, action Action, res Resource) (bool, error) {
	subject := id.UserID
	role := id.Role
	if id.Anonymous || subject == "" {
		subject = identity.AnonymousUserID
		role = identity.RoleAnonymous
	}
	if role == ownerSubject {
		role = identity.RoleUser
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	allowed, err := a.enforcer.Enforce(subject, role, res.OwnerID, string(action))
	if err != nil {
		return false, fmt.Errorf("access enforce: %w", err)
	}
	return allowed, nil
}
