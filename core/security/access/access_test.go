package access

import (
	"context"
	"testing"

	"github.com/cutty/cutty/core/security/identity"
)

func TestCasbinAuthorizerDecisions(t *testing.T) {
	authz, err := NewCasbinAuthorizer()
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	ctx := context.Background()
	owner := identity.Identity{UserID: "alice", Role: identity.RoleUser}
	other := identity.Identity{UserID: "bob", Role: identity.RoleUser}
	admin := identity.Identity{UserID: "root", Role: identity.RoleAdmin}
	res := Resource{ID: "file-1", OwnerID: "alice"}

	cases := []struct {
		name   string
		id     identity.Identity
		action Action
		res    Resource
		want   bool
	}{
		{"owner read", owner, ActionRead, res, true},
		{"owner delete", owner, ActionDelete, res, true},
		{"other user read", other, ActionRead, res, false},
		{"admin read", admin, ActionRead, res, true},
		{"admin unknown owner", admin, ActionWrite, Resource{ID: "x"}, true},
		{"user unknown owner", owner, ActionRead, Resource{ID: "x"}, false},
		{"anonymous read", identity.Anonymous(), ActionRead, res, false},
		{"anonymous on anonymous-owned", identity.Anonymous(), ActionRead, Resource{ID: "y", OwnerID: identity.AnonymousUserID}, false},
		{"anonymous flag with admin role", identity.Identity{UserID: "root", Role: identity.RoleAdmin, Anonymous: true}, ActionRead, res, false},
	}
	for _, tc := range cases {
		got, err := authz.Can(ctx, tc.id, tc.action, tc.res)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestGrantRole(t *testing.T) {
	authz, err := NewCasbinAuthorizer()
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	auditor := identity.Identity{UserID: "carol", Role: "auditor"}
	res := Resource{ID: "file-1", OwnerID: "alice"}
	if ok, _ := authz.Can(context.Background(), auditor, ActionRead, res); ok {
		t.Fatalf("auditor allowed before grant")
	}
	if err := authz.Grant("auditor", ActionRead); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if ok, _ := authz.Can(context.Background(), auditor, ActionRead, res); !ok {
		t.Fatalf("auditor denied after grant")
	}
	if ok, _ := authz.Can(context.Background(), auditor, ActionDelete, res); ok {
		t.Fatalf("grant leaked to other actions")
	}
}
