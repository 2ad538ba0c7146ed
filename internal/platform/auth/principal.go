package auth

import (
	"context"
	"sort"
)

// Capability is an action a principal may perform on the request workflow.
type Capability string

const (
	CanSubmit    Capability = "submit"
	CanReview    Capability = "review"
	CanViewQueue Capability = "view_queue"
)

// AllCapabilities lists every capability the resolver checks.
var AllCapabilities = []Capability{CanSubmit, CanReview, CanViewQueue}

// Principal is the authenticated caller as supplied by the identity
// provider: an opaque id plus the capabilities derived from its roles.
type Principal struct {
	ID    string
	Roles []string
	caps  map[Capability]bool
}

// NewPrincipal builds a principal with an explicit capability set.
func NewPrincipal(id string, roles []string, caps ...Capability) *Principal {
	p := &Principal{ID: id, Roles: roles, caps: make(map[Capability]bool, len(caps))}
	for _, c := range caps {
		p.caps[c] = true
	}
	return p
}

// Authenticated reports whether the principal carries an identity.
func (p *Principal) Authenticated() bool {
	return p != nil && p.ID != ""
}

// Has reports whether the principal holds the capability. A nil principal
// holds nothing.
func (p *Principal) Has(c Capability) bool {
	if p == nil {
		return false
	}
	return p.caps[c]
}

// Capabilities returns the held capabilities in stable order.
func (p *Principal) Capabilities() []Capability {
	if p == nil {
		return nil
	}
	out := make([]Capability, 0, len(p.caps))
	for c, ok := range p.caps {
		if ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller, or nil when the request is anonymous.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

func UserIDFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.ID
	}
	return ""
}

func RolesFromContext(ctx context.Context) []string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Roles
	}
	return nil
}
