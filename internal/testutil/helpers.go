// Package testutil provides shared test helpers for the doctor project.
// Import this in test files to avoid duplicating document fixtures.
package testutil

import (
	"fmt"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/document"
	"github.com/tordoctor/doctor/internal/types"
)

// DefaultVersion is the tor version every fixture relay runs.
const DefaultVersion = "0.4.8.10"

// DefaultConsensusMethod is the method fixture consensuses are built with.
const DefaultConsensusMethod = 32

// RelayCount is the number of ordinary relays in a fixture network.
const RelayCount = 10

// LoadFixture reads a file from testdata. Fails the test immediately if the
// file can't be read.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read fixture %s", path)
	return data
}

// Fingerprint returns a deterministic 40 character fingerprint for n.
func Fingerprint(n int) string {
	return fmt.Sprintf("%040X", n)
}

// Measured returns a pointer to v for RouterStatus.Measured.
func Measured(v int64) *int64 {
	return &v
}

// Router builds a router status entry with sorted flags.
func Router(nickname, fingerprint string, flags ...string) *types.RouterStatus {
	f := append([]string(nil), flags...)
	sort.Strings(f)
	return &types.RouterStatus{
		Nickname:    nickname,
		Fingerprint: fingerprint,
		Address:     "10.0.0.1",
		ORPort:      9001,
		Flags:       f,
		Version:     DefaultVersion,
		Bandwidth:   1000,
	}
}

// Network is a healthy set of documents for every voting authority of a
// registry: all checks pass against it when evaluated at Now. Tests mutate
// the maps and then call Set.
type Network struct {
	Registry    *directory.Registry
	ValidAfter  time.Time
	Now         time.Time
	Consensuses map[string]*types.Consensus
	Votes       map[string]*types.Vote
}

// NewNetwork builds a healthy network. Bandwidth authorities vote a measured
// value for every relay.
func NewNetwork(reg *directory.Registry, bandwidthAuthorities []string, validAfter time.Time) *Network {
	bw := make(map[string]bool, len(bandwidthAuthorities))
	for _, n := range bandwidthAuthorities {
		bw[n] = true
	}
	n := &Network{
		Registry:    reg,
		ValidAfter:  validAfter,
		Now:         validAfter.Add(10 * time.Minute),
		Consensuses: map[string]*types.Consensus{},
		Votes:       map[string]*types.Vote{},
	}
	for _, a := range reg.Voting() {
		n.Consensuses[a.Nickname] = n.consensus()
		n.Votes[a.Nickname] = n.vote(a, bw[a.Nickname])
	}
	return n
}

// Set assembles the current documents into a document.Set.
func (n *Network) Set() *document.Set {
	return document.NewSet(n.Consensuses, n.Votes)
}

// Latest returns the consensus NewSet would select.
func (n *Network) Latest() *types.Consensus {
	return n.Set().Latest
}

// AddRelay places a relay with the given flags in every consensus and vote.
func (n *Network) AddRelay(nickname, fingerprint string, flags ...string) {
	for _, c := range n.Consensuses {
		c.Routers[fingerprint] = Router(nickname, fingerprint, flags...)
	}
	for _, v := range n.Votes {
		r := Router(nickname, fingerprint, flags...)
		if measuredVote(v) {
			r.Measured = Measured(900)
		}
		v.Routers[fingerprint] = r
	}
}

func (n *Network) document() types.Document {
	d := types.Document{
		ValidAfter:     n.ValidAfter,
		FreshUntil:     n.ValidAfter.Add(time.Hour),
		ValidUntil:     n.ValidAfter.Add(3 * time.Hour),
		KnownFlags:     []string{"Authority", "BadExit", "Exit", "Fast", "Guard", "HSDir", "Running", "Stable", "StaleDesc", "V2Dir", "Valid"},
		Routers:        map[string]*types.RouterStatus{},
		ClientVersions: []string{"0.4.8.9", DefaultVersion},
		ServerVersions: []string{"0.4.8.9", DefaultVersion},
		Params:         map[string]int64{"bwweightscale": 10000, "CircuitPriorityHalflifeMsec": 30000},
	}
	for _, a := range n.Registry.All() {
		// The bridge authority carries the flag too, as on the live network.
		flags := []string{types.FlagAuthority, types.FlagRunning, "Fast", "Stable", "V2Dir", "Valid"}
		r := Router(a.Nickname, a.Fingerprint, flags...)
		r.Address, r.ORPort, r.DirPort = a.Address, a.ORPort, a.DirPort
		d.Routers[a.Fingerprint] = r
	}
	for i := 1; i <= RelayCount; i++ {
		fp := Fingerprint(i)
		d.Routers[fp] = Router(fmt.Sprintf("relay%d", i), fp, "Fast", "Guard", types.FlagRunning, "Stable", "Valid")
	}
	return d
}

func (n *Network) consensus() *types.Consensus {
	c := &types.Consensus{Document: n.document(), ConsensusMethod: DefaultConsensusMethod}
	c.SharedRandomCurrent = &types.SharedRandom{NumReveals: 9, Value: "current="}
	c.SharedRandomPrevious = &types.SharedRandom{NumReveals: 9, Value: "previous="}
	for _, a := range n.Registry.Voting() {
		c.Signatures = append(c.Signatures, types.Signature{Algorithm: "sha256", Identity: a.V3Ident})
		c.DirSources = append(c.DirSources, types.DirSource{Nickname: a.Nickname, Identity: a.V3Ident, Address: a.Address, DirPort: a.DirPort, ORPort: a.ORPort})
	}
	return c
}

func (n *Network) vote(author types.Authority, bandwidthAuthority bool) *types.Vote {
	v := &types.Vote{Document: n.document(), ConsensusMethods: []int{30, 31, DefaultConsensusMethod}}
	if bandwidthAuthority {
		for _, r := range v.Routers {
			r.Measured = Measured(900)
		}
	}
	var commits []types.SharedRandomCommitment
	for _, a := range n.Registry.Voting() {
		commits = append(commits, Commitment(a))
	}
	v.DirSources = []types.DirSource{{
		Nickname: author.Nickname,
		Identity: author.V3Ident,
		Address:  author.Address,
		DirPort:  author.DirPort,
		ORPort:   author.ORPort,
		KeyCertificate: &types.KeyCertificate{
			Fingerprint: author.V3Ident,
			Published:   n.ValidAfter.AddDate(0, -1, 0),
			Expires:     n.ValidAfter.AddDate(0, 6, 0),
		},
		SharedRandomCommitments: commits,
	}}
	return v
}

// Commitment is the healthy shared random commitment for an authority.
func Commitment(a types.Authority) types.SharedRandomCommitment {
	return types.SharedRandomCommitment{
		Version:   1,
		Algorithm: "sha3-256",
		Identity:  a.V3Ident,
		Commit:    "commit-" + a.Nickname,
		Reveal:    "reveal-" + a.Nickname,
	}
}

func measuredVote(v *types.Vote) bool {
	for _, r := range v.Routers {
		if r.Measured != nil {
			return true
		}
	}
	return false
}
