package checks

import (
	"time"

	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
)

// Input is the read-only view a rule evaluates. Maps are keyed by authority
// nickname. Rules must not modify it.
type Input struct {
	Latest      *types.Consensus
	Consensuses map[string]*types.Consensus
	Votes       map[string]*types.Vote
	// Now is the evaluation time in UTC.
	Now time.Time
}

// Rule inspects a document snapshot and reports problems. Implementations are
// stateless; an error means the rule could not run, not that it found issues.
type Rule interface {
	// Name returns the rule's identifier (e.g., "has-all-signatures").
	Name() string

	// Description is a one-line summary for listings.
	Description() string

	// Evaluate returns the issues found, in a stable order.
	Evaluate(in *Input) ([]issue.Issue, error)
}

// Env is the static, per-run configuration rules consult. It is built once
// and shared read-only between rules.
type Env struct {
	Registry *directory.Registry
	// BandwidthAuthorities are expected to vote measured bandwidths.
	BandwidthAuthorities []string
	// Excluded authorities were removed from the registry but still run as
	// authorities on the network.
	Excluded []string
	// KnownParams are consensus parameters that are not reported as unknown.
	KnownParams []string
}

func (e Env) isBandwidthAuthority(nickname string) bool {
	for _, n := range e.BandwidthAuthorities {
		if n == nickname {
			return true
		}
	}
	return false
}

// ruleFunc adapts a plain function to the Rule interface.
type ruleFunc struct {
	name        string
	description string
	eval        func(in *Input) ([]issue.Issue, error)
}

func newRule(name, description string, eval func(in *Input) ([]issue.Issue, error)) Rule {
	return &ruleFunc{name: name, description: description, eval: eval}
}

func (r *ruleFunc) Name() string                              { return r.name }
func (r *ruleFunc) Description() string                       { return r.description }
func (r *ruleFunc) Evaluate(in *Input) ([]issue.Issue, error) { return r.eval(in) }
