package document

import (
	"sort"
	"time"

	"github.com/tordoctor/doctor/internal/types"
)

// Set is the read-only snapshot of one polling cycle: the consensus and vote
// each authority served, the most recent consensus among them, and fetch
// measurements. Nothing carries over between cycles.
type Set struct {
	Consensuses map[string]*types.Consensus
	Votes       map[string]*types.Vote

	// Latest is the consensus with the greatest valid-after time, nil when no
	// consensus was fetched. LatestFrom names the authority that served it.
	Latest     *types.Consensus
	LatestFrom string

	FetchLatency map[string]time.Duration
	ClockSkew    map[string]time.Duration
}

// NewSet assembles a snapshot and selects the latest consensus. Authorities
// are visited in nickname order and the first maximum wins, so the choice is
// deterministic when valid-after times tie.
func NewSet(consensuses map[string]*types.Consensus, votes map[string]*types.Vote) *Set {
	if consensuses == nil {
		consensuses = map[string]*types.Consensus{}
	}
	if votes == nil {
		votes = map[string]*types.Vote{}
	}
	s := &Set{
		Consensuses:  consensuses,
		Votes:        votes,
		FetchLatency: map[string]time.Duration{},
		ClockSkew:    map[string]time.Duration{},
	}
	for _, nickname := range sortedKeys(consensuses) {
		c := consensuses[nickname]
		if c == nil {
			continue
		}
		if s.Latest == nil || c.ValidAfter.After(s.Latest.ValidAfter) {
			s.Latest = c
			s.LatestFrom = nickname
		}
	}
	return s
}

// Complete reports whether there is enough data to run the checks: at least
// one consensus and one vote.
func (s *Set) Complete() bool {
	return s.Latest != nil && len(s.Votes) > 0
}

// ConsensusAuthorities returns the nicknames that served a consensus, sorted.
func (s *Set) ConsensusAuthorities() []string { return sortedKeys(s.Consensuses) }

// VoteAuthorities returns the nicknames that served a vote, sorted.
func (s *Set) VoteAuthorities() []string { return sortedKeys(s.Votes) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
