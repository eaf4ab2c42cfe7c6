package types

import (
	"fmt"
	"strings"
)

// Severity indicates how urgently an issue needs attention. The zero value is
// SeverityNotice.
type Severity int

const (
	SeverityNotice  Severity = iota // Worth knowing, usually a policy difference
	SeverityWarning                 // Something an operator should fix soon
	SeverityError                   // Breaks the network for clients, never suppressed
)

// String returns the upper-case label used in notifications and logs.
func (s Severity) String() string {
	switch s {
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity accepts the labels produced by String, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NOTICE":
		return SeverityNotice, nil
	case "WARNING":
		return SeverityWarning, nil
	case "ERROR":
		return SeverityError, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Authority is a static directory entry for a directory authority.
// Authorities without a V3Ident are non-voting mirrors.
type Authority struct {
	Nickname    string `json:"nickname"`
	Address     string `json:"address"`
	ORPort      int    `json:"or_port"`
	DirPort     int    `json:"dir_port"`
	Fingerprint string `json:"fingerprint"`
	V3Ident     string `json:"v3ident,omitempty"`
}

// IsVoting reports whether the authority participates in consensus votes.
func (a Authority) IsVoting() bool {
	return a.V3Ident != ""
}

// LegacyAddress is a DirPort an authority moved away from but still promises
// to serve, for clients with an old authority list.
type LegacyAddress struct {
	Nickname string `json:"nickname"`
	Address  string `json:"address"`
	DirPort  int    `json:"dir_port"`
}

// Destination is where notifications for an authority are delivered.
type Destination struct {
	Address string
	// BCC routes the address through blind carbon copy rather than cc.
	BCC bool
}
