package directory

import (
	"fmt"
	"sort"

	"github.com/tordoctor/doctor/internal/types"
)

// Registry is an immutable set of directory authorities keyed by nickname.
// Build one per run with New or Default and pass it to the components that
// need it.
type Registry struct {
	byNickname map[string]types.Authority
	byV3Ident  map[string]string
	nicknames  []string // sorted
}

// New builds a registry. Nicknames and v3idents must be unique.
func New(authorities []types.Authority) (*Registry, error) {
	r := &Registry{
		byNickname: make(map[string]types.Authority, len(authorities)),
		byV3Ident:  make(map[string]string, len(authorities)),
	}
	for _, a := range authorities {
		if a.Nickname == "" {
			return nil, fmt.Errorf("authority with fingerprint %q has no nickname", a.Fingerprint)
		}
		if _, dup := r.byNickname[a.Nickname]; dup {
			return nil, fmt.Errorf("duplicate authority nickname %q", a.Nickname)
		}
		if a.V3Ident != "" {
			if other, dup := r.byV3Ident[a.V3Ident]; dup {
				return nil, fmt.Errorf("authorities %q and %q share v3ident %s", other, a.Nickname, a.V3Ident)
			}
			r.byV3Ident[a.V3Ident] = a.Nickname
		}
		r.byNickname[a.Nickname] = a
		r.nicknames = append(r.nicknames, a.Nickname)
	}
	sort.Strings(r.nicknames)
	return r, nil
}

// MustNew is New for static tables; it panics on invalid input.
func MustNew(authorities []types.Authority) *Registry {
	r, err := New(authorities)
	if err != nil {
		panic(err)
	}
	return r
}

// Without returns a copy of the registry minus the given nicknames. Unknown
// nicknames are ignored.
func (r *Registry) Without(nicknames ...string) *Registry {
	drop := make(map[string]struct{}, len(nicknames))
	for _, n := range nicknames {
		drop[n] = struct{}{}
	}
	kept := make([]types.Authority, 0, len(r.nicknames))
	for _, n := range r.nicknames {
		if _, skip := drop[n]; !skip {
			kept = append(kept, r.byNickname[n])
		}
	}
	// Entries were already validated.
	return MustNew(kept)
}

// Get looks up an authority by nickname.
func (r *Registry) Get(nickname string) (types.Authority, bool) {
	a, ok := r.byNickname[nickname]
	return a, ok
}

// ByV3Ident looks up a voting authority by its v3 identity fingerprint.
func (r *Registry) ByV3Ident(v3ident string) (types.Authority, bool) {
	n, ok := r.byV3Ident[v3ident]
	if !ok {
		return types.Authority{}, false
	}
	return r.byNickname[n], true
}

// NicknameFor resolves a v3ident to a nickname, falling back to the v3ident.
func (r *Registry) NicknameFor(v3ident string) string {
	if n, ok := r.byV3Ident[v3ident]; ok {
		return n
	}
	return v3ident
}

// All returns every authority ordered by nickname.
func (r *Registry) All() []types.Authority {
	out := make([]types.Authority, 0, len(r.nicknames))
	for _, n := range r.nicknames {
		out = append(out, r.byNickname[n])
	}
	return out
}

// Voting returns the authorities with a v3ident, ordered by nickname.
func (r *Registry) Voting() []types.Authority {
	var out []types.Authority
	for _, n := range r.nicknames {
		if a := r.byNickname[n]; a.IsVoting() {
			out = append(out, a)
		}
	}
	return out
}

// Nicknames returns every nickname in sorted order.
func (r *Registry) Nicknames() []string {
	out := make([]string, len(r.nicknames))
	copy(out, r.nicknames)
	return out
}

// Len returns the number of authorities.
func (r *Registry) Len() int { return len(r.nicknames) }
