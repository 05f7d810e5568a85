// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package policy implements the scheduler's optional authorize(action,
// agent) security hook: a default no-op, an allow/deny-list check, and a
// Chain that composes several Authorizers in sequence, the way
// internal/gates composes verification gates.
package policy

import (
	"context"

	"coordkernel/pkg/execifc"
	"coordkernel/pkg/types"
)

// NoOp authorizes every action unconditionally. It is the scheduler's
// default when no policy is configured.
type NoOp struct{}

var _ execifc.Authorizer = NoOp{}

// Authorize always allows.
func (NoOp) Authorize(ctx context.Context, action execifc.Action, agent types.Agent) execifc.Decision {
	return execifc.Decision{Allowed: true}
}

// AllowDenyList authorizes an action by its Name against an explicit
// allow list and deny list. Deny takes precedence over allow; an action
// absent from both lists is allowed only if AllowByDefault is set.
type AllowDenyList struct {
	Allow          map[string]bool
	Deny           map[string]bool
	AllowByDefault bool
}

// NewAllowDenyList builds an AllowDenyList from explicit allow/deny
// action-name sets.
func NewAllowDenyList(allow, deny []string, allowByDefault bool) *AllowDenyList {
	l := &AllowDenyList{
		Allow:          make(map[string]bool, len(allow)),
		Deny:           make(map[string]bool, len(deny)),
		AllowByDefault: allowByDefault,
	}
	for _, a := range allow {
		l.Allow[a] = true
	}
	for _, d := range deny {
		l.Deny[d] = true
	}
	return l
}

var _ execifc.Authorizer = (*AllowDenyList)(nil)

// Authorize checks action.Name against the deny list first, then the
// allow list, then AllowByDefault.
func (l *AllowDenyList) Authorize(ctx context.Context, action execifc.Action, agent types.Agent) execifc.Decision {
	if l.Deny[action.Name] {
		return execifc.Decision{Allowed: false, Reason: "action " + action.Name + " is explicitly denied"}
	}
	if l.Allow[action.Name] {
		return execifc.Decision{Allowed: true}
	}
	if l.AllowByDefault {
		return execifc.Decision{Allowed: true}
	}
	return execifc.Decision{Allowed: false, Reason: "action " + action.Name + " is not on the allow list"}
}

// Chain runs a sequence of Authorizers; the first decision that denies
// wins. An empty chain allows everything.
type Chain struct {
	authorizers []execifc.Authorizer
}

// NewChain creates a Chain over the given authorizers, evaluated in order.
func NewChain(authorizers ...execifc.Authorizer) *Chain {
	return &Chain{authorizers: authorizers}
}

var _ execifc.Authorizer = (*Chain)(nil)

// Authorize runs each authorizer in sequence, short-circuiting on the
// first denial.
func (c *Chain) Authorize(ctx context.Context, action execifc.Action, agent types.Agent) execifc.Decision {
	for _, a := range c.authorizers {
		if d := a.Authorize(ctx, action, agent); !d.Allowed {
			return d
		}
	}
	return execifc.Decision{Allowed: true}
}
