package auth

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const capabilityModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// requestObject is the casbin object every workflow capability applies to.
const requestObject = "request"

// RolePolicy grants capabilities to a role. Inherits lists roles whose
// capabilities this role also receives.
type RolePolicy struct {
	Role         string
	Capabilities []Capability
	Inherits     []string
}

// DefaultPolicies maps the identity provider's roles onto capabilities.
// "user" and "admin" are the roles issued by the account service;
// "reviewer" is a moderation-only role.
func DefaultPolicies() []RolePolicy {
	return []RolePolicy{
		{Role: "user", Capabilities: []Capability{CanSubmit}},
		{Role: "reviewer", Capabilities: []Capability{CanReview, CanViewQueue}},
		{Role: "admin", Inherits: []string{"user", "reviewer"}},
	}
}

// CapabilityResolver turns role tags into capabilities using a casbin
// enforcer. It is safe for concurrent use.
type CapabilityResolver struct {
	enforcer *casbin.SyncedEnforcer
}

func NewCapabilityResolver(policies []RolePolicy) (*CapabilityResolver, error) {
	m, err := model.NewModelFromString(capabilityModel)
	if err != nil {
		return nil, fmt.Errorf("parse capability model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	e.EnableLog(false)

	for _, rp := range policies {
		sub := roleSubject(rp.Role)
		for _, c := range rp.Capabilities {
			if _, err := e.AddPolicy(sub, requestObject, string(c)); err != nil {
				return nil, fmt.Errorf("add policy %s/%s: %w", rp.Role, c, err)
			}
		}
		for _, parent := range rp.Inherits {
			if _, err := e.AddGroupingPolicy(sub, roleSubject(parent)); err != nil {
				return nil, fmt.Errorf("add inheritance %s->%s: %w", rp.Role, parent, err)
			}
		}
	}
	return &CapabilityResolver{enforcer: e}, nil
}

func roleSubject(role string) string {
	return "role:" + strings.ToLower(strings.TrimSpace(role))
}

// Resolve builds a principal for id with every capability granted to any of
// its roles.
func (r *CapabilityResolver) Resolve(id string, roles []string) (*Principal, error) {
	var caps []Capability
	for _, c := range AllCapabilities {
		for _, role := range roles {
			ok, err := r.enforcer.Enforce(roleSubject(role), requestObject, string(c))
			if err != nil {
				return nil, fmt.Errorf("enforce %s for role %s: %w", c, role, err)
			}
			if ok {
				caps = append(caps, c)
				break
			}
		}
	}
	return NewPrincipal(id, roles, caps...), nil
}
