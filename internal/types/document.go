package types

import (
	"slices"
	"time"
)

// Well-known relay flags referenced by the checks.
const (
	FlagAuthority = "Authority"
	FlagBadExit   = "BadExit"
	FlagRunning   = "Running"
	FlagHSDir     = "HSDir"
	FlagStaleDesc = "StaleDesc"
)

// ORAddress is an additional address a relay accepts OR connections on.
type ORAddress struct {
	Address string
	Port    int
	IPv6    bool
}

// RouterStatus is one relay's status as seen by a single document.
type RouterStatus struct {
	Nickname    string
	Fingerprint string
	Address     string
	ORPort      int
	DirPort     int
	ORAddresses []ORAddress
	// Flags is kept sorted.
	Flags     []string
	Version   string
	Bandwidth int64
	// Measured is nil when the document holds no measured-bandwidth opinion.
	Measured *int64
}

// HasFlag reports whether the relay carries the given flag.
func (r *RouterStatus) HasFlag(flag string) bool {
	_, found := slices.BinarySearch(r.Flags, flag)
	return found
}

// Signature is a directory-signature entry. Only its presence is audited.
type Signature struct {
	Algorithm        string
	Identity         string
	SigningKeyDigest string
}

// SharedRandomCommitment is a shared-rand-commit line from a vote.
type SharedRandomCommitment struct {
	Version   int
	Algorithm string
	Identity  string
	Commit    string
	// Reveal is empty during the commit phase.
	Reveal string
}

// SharedRandom is a shared random value published in a consensus.
type SharedRandom struct {
	NumReveals int
	Value      string
}

// KeyCertificate is the subset of an authority key certificate the checks use.
type KeyCertificate struct {
	Fingerprint string
	Published   time.Time
	Expires     time.Time
}

// DirSource describes an authority that contributed to a document. In a vote
// there is exactly one, the author.
type DirSource struct {
	Nickname   string
	Identity   string
	Hostname   string
	Address    string
	DirPort    int
	ORPort     int
	Contact    string
	VoteDigest string

	// Vote only.
	KeyCertificate          *KeyCertificate
	SharedRandomCommitments []SharedRandomCommitment
}

// Document holds the fields shared by consensuses and votes.
type Document struct {
	ValidAfter     time.Time
	FreshUntil     time.Time
	ValidUntil     time.Time
	KnownFlags     []string
	Routers        map[string]*RouterStatus
	ClientVersions []string
	ServerVersions []string
	Params         map[string]int64
	Signatures     []Signature

	SharedRandomCurrent  *SharedRandom
	SharedRandomPrevious *SharedRandom

	DirSources []DirSource
}

// Consensus is a merged network status document.
type Consensus struct {
	Document
	ConsensusMethod int
}

// Vote is a network status document authored by a single authority.
type Vote struct {
	Document
	ConsensusMethods []int
}

// Author returns the authority entry of the vote's author, or nil if the vote
// is malformed and carries none.
func (v *Vote) Author() *DirSource {
	if len(v.DirSources) == 0 {
		return nil
	}
	return &v.DirSources[0]
}

// SupportsMethod reports whether the vote lists the consensus method.
func (v *Vote) SupportsMethod(method int) bool {
	return slices.Contains(v.ConsensusMethods, method)
}
