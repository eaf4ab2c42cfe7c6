package checks

import (
	"fmt"
	"sort"
)

// Default returns the standard rules in evaluation order.
func Default(env Env) []Rule {
	return []Rule{
		MissingLatestConsensus(),
		MissingAuthorityDescriptor(env),
		ConsensusMethodUnsupported(),
		RecommendedClientVersion(),
		RecommendedServerVersion(),
		CertificateExpiration(),
		ConsensusesHaveSameVotes(),
		HasAllSignatures(env),
		VotingBandwidthScanners(env),
		HasAuthorityFlag(env),
		HasSimilarFlagCounts(),
		IsRecommendedVersion(env),
		BadExitsInSync(),
		BandwidthAuthoritiesInSync(),
		SharedRandomPresent(),
		SharedRandomCommitPartitioning(env),
		SharedRandomRevealPartitioning(env),
	}
}

// Optional returns the rules that are off unless enabled by name. They tend to
// fire on routine parameter experiments.
func Optional(env Env) map[string]Rule {
	rules := []Rule{
		UnknownConsensusParameters(env),
		VoteParametersMismatch(),
		UnmeasuredRelays(env),
	}
	out := make(map[string]Rule, len(rules))
	for _, r := range rules {
		out[r.Name()] = r
	}
	return out
}

// Register adds the default rules followed by the named optional rules to the
// engine. Unknown names are an error.
func Register(e *Engine, env Env, extra []string) error {
	optional := Optional(env)
	var toAdd []Rule
	for _, name := range extra {
		r, ok := optional[name]
		if !ok {
			known := make([]string, 0, len(optional))
			for n := range optional {
				known = append(known, n)
			}
			sort.Strings(known)
			return fmt.Errorf("unknown optional check %q (known: %v)", name, known)
		}
		toAdd = append(toAdd, r)
	}
	for _, r := range Default(env) {
		e.RegisterRule(r)
	}
	for _, r := range toAdd {
		e.RegisterRule(r)
	}
	return nil
}
