// Package auth decides which operators may submit settlements.
package auth

import "github.com/ethereum/go-ethereum/common"

type Authorizer interface {
	IsAuthorized(caller common.Address) bool
}

// Allowlist authorizes a fixed set of operator addresses.
type Allowlist struct {
	set map[common.Address]struct{}
}

func NewAllowlist(operators ...common.Address) *Allowlist {
	set := make(map[common.Address]struct{}, len(operators))
	for _, op := range operators {
		set[op] = struct{}{}
	}
	return &Allowlist{set: set}
}

func (a *Allowlist) IsAuthorized(caller common.Address) bool {
	_, ok := a.set[caller]
	return ok
}

// Open authorizes every caller. Useful for single-operator devnets.
type Open struct{}

func (Open) IsAuthorized(common.Address) bool { return true }
