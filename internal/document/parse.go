package document

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tordoctor/doctor/internal/types"
)

const timeLayout = "2006-01-02 15:04:05"

// ParseError locates a problem in a network status document.
type ParseError struct {
	Line    int
	Keyword string
	Msg     string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("network status: %s", e.Msg)
	}
	return fmt.Sprintf("network status line %d (%s): %s", e.Line, e.Keyword, e.Msg)
}

// ParseConsensus parses a v3 network status consensus.
func ParseConsensus(raw []byte) (*types.Consensus, error) {
	p, err := parse(raw, "consensus")
	if err != nil {
		return nil, err
	}
	return &types.Consensus{Document: p.doc, ConsensusMethod: p.method}, nil
}

// ParseVote parses a v3 network status vote. Shared random commitments and
// the key certificate are attached to the author's dir-source entry.
func ParseVote(raw []byte) (*types.Vote, error) {
	p, err := parse(raw, "vote")
	if err != nil {
		return nil, err
	}
	if len(p.doc.DirSources) == 0 {
		return nil, &ParseError{Msg: "vote has no dir-source"}
	}
	author := &p.doc.DirSources[0]
	author.SharedRandomCommitments = p.commits
	author.KeyCertificate = p.cert
	return &types.Vote{Document: p.doc, ConsensusMethods: p.methods}, nil
}

type parser struct {
	want    string
	doc     types.Document
	method  int
	methods []int
	commits []types.SharedRandomCommitment
	cert    *types.KeyCertificate

	status   string
	router   *types.RouterStatus
	inFooter bool
	lineNo   int
	keyword  string
}

func parse(raw []byte, want string) (*parser, error) {
	p := &parser{
		want: want,
		doc: types.Document{
			Routers: map[string]*types.RouterStatus{},
			Params:  map[string]int64{},
		},
	}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	inObject := false
	for sc.Scan() {
		p.lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, "-----BEGIN ") {
			inObject = true
			continue
		}
		if inObject {
			if strings.HasPrefix(line, "-----END ") {
				inObject = false
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		p.keyword = fields[0]
		if err := p.line(fields[0], fields[1:]); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading network status: %w", err)
	}
	p.flushRouter()
	if p.status == "" {
		return nil, &ParseError{Msg: "missing vote-status"}
	}
	if p.doc.ValidAfter.IsZero() {
		return nil, &ParseError{Msg: "missing valid-after"}
	}
	return p, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.lineNo, Keyword: p.keyword, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) line(keyword string, args []string) error {
	switch keyword {
	case "vote-status":
		if len(args) != 1 {
			return p.errorf("expected one argument")
		}
		if args[0] != p.want {
			return p.errorf("document is a %s, expected a %s", args[0], p.want)
		}
		p.status = args[0]
	case "consensus-method":
		n, err := p.atoi(args, 0)
		if err != nil {
			return err
		}
		p.method = n
	case "consensus-methods":
		for i := range args {
			n, err := p.atoi(args, i)
			if err != nil {
				return err
			}
			p.methods = append(p.methods, n)
		}
	case "valid-after":
		return p.timestamp(args, &p.doc.ValidAfter)
	case "fresh-until":
		return p.timestamp(args, &p.doc.FreshUntil)
	case "valid-until":
		return p.timestamp(args, &p.doc.ValidUntil)
	case "client-versions":
		p.doc.ClientVersions = splitList(args)
	case "server-versions":
		p.doc.ServerVersions = splitList(args)
	case "known-flags":
		p.doc.KnownFlags = append([]string(nil), args...)
	case "params":
		for _, kv := range args {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return p.errorf("malformed parameter %q", kv)
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return p.errorf("parameter %s is not an integer: %q", k, v)
			}
			p.doc.Params[k] = n
		}
	case "shared-rand-current-value", "shared-rand-previous-value":
		if len(args) < 2 {
			return p.errorf("expected reveal count and value")
		}
		n, err := p.atoi(args, 0)
		if err != nil {
			return err
		}
		sr := &types.SharedRandom{NumReveals: n, Value: args[1]}
		if keyword == "shared-rand-current-value" {
			p.doc.SharedRandomCurrent = sr
		} else {
			p.doc.SharedRandomPrevious = sr
		}
	case "shared-rand-commit":
		if len(args) < 4 {
			return p.errorf("expected version, algorithm, identity and commit")
		}
		v, err := p.atoi(args, 0)
		if err != nil {
			return err
		}
		c := types.SharedRandomCommitment{Version: v, Algorithm: args[1], Identity: args[2], Commit: args[3]}
		if len(args) > 4 {
			c.Reveal = args[4]
		}
		p.commits = append(p.commits, c)
	case "dir-source":
		if len(args) < 6 {
			return p.errorf("expected six arguments")
		}
		dirPort, err := p.atoi(args, 4)
		if err != nil {
			return err
		}
		orPort, err := p.atoi(args, 5)
		if err != nil {
			return err
		}
		p.doc.DirSources = append(p.doc.DirSources, types.DirSource{
			Nickname: args[0],
			Identity: strings.ToUpper(args[1]),
			Hostname: args[2],
			Address:  args[3],
			DirPort:  dirPort,
			ORPort:   orPort,
		})
	case "contact":
		if ds := p.lastDirSource(); ds != nil {
			ds.Contact = strings.Join(args, " ")
		}
	case "vote-digest":
		if ds := p.lastDirSource(); ds != nil && len(args) > 0 {
			ds.VoteDigest = args[0]
		}
	case "fingerprint":
		if len(args) > 0 {
			p.certificate().Fingerprint = strings.ToUpper(args[0])
		}
	case "dir-key-published":
		return p.timestamp(args, &p.certificate().Published)
	case "dir-key-expires":
		return p.timestamp(args, &p.certificate().Expires)
	case "r":
		return p.routerLine(args)
	case "a":
		return p.addressLine(args)
	case "s":
		if p.router != nil {
			flags := append([]string(nil), args...)
			sort.Strings(flags)
			p.router.Flags = flags
		}
	case "v":
		if p.router != nil {
			p.router.Version = strings.TrimPrefix(strings.Join(args, " "), "Tor ")
		}
	case "w":
		return p.weightLine(args)
	case "directory-footer":
		p.flushRouter()
		p.inFooter = true
	case "directory-signature":
		p.flushRouter()
		sig := types.Signature{Algorithm: "sha1"}
		switch len(args) {
		case 2:
			sig.Identity, sig.SigningKeyDigest = args[0], args[1]
		case 3:
			sig.Algorithm, sig.Identity, sig.SigningKeyDigest = args[0], args[1], args[2]
		default:
			return p.errorf("expected two or three arguments")
		}
		sig.Identity = strings.ToUpper(sig.Identity)
		p.doc.Signatures = append(p.doc.Signatures, sig)
	}
	return nil
}

func (p *parser) routerLine(args []string) error {
	p.flushRouter()
	if p.inFooter {
		return p.errorf("router entry after footer")
	}
	// r nickname identity [digest] date time address orport dirport
	if len(args) < 7 {
		return p.errorf("expected at least seven arguments")
	}
	fp, err := decodeIdentity(args[1])
	if err != nil {
		return p.errorf("bad identity %q: %v", args[1], err)
	}
	n := len(args)
	orPort, err := p.atoi(args, n-2)
	if err != nil {
		return err
	}
	dirPort, err := p.atoi(args, n-1)
	if err != nil {
		return err
	}
	p.router = &types.RouterStatus{
		Nickname:    args[0],
		Fingerprint: fp,
		Address:     args[n-3],
		ORPort:      orPort,
		DirPort:     dirPort,
	}
	return nil
}

func (p *parser) addressLine(args []string) error {
	if p.router == nil || len(args) == 0 {
		return nil
	}
	host, port, err := net.SplitHostPort(args[0])
	if err != nil {
		return p.errorf("bad address %q: %v", args[0], err)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return p.errorf("bad port in %q", args[0])
	}
	p.router.ORAddresses = append(p.router.ORAddresses, types.ORAddress{
		Address: host,
		Port:    n,
		IPv6:    strings.Contains(host, ":"),
	})
	return nil
}

func (p *parser) weightLine(args []string) error {
	if p.router == nil {
		return nil
	}
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return p.errorf("%s is not an integer: %q", k, v)
		}
		switch k {
		case "Bandwidth":
			p.router.Bandwidth = n
		case "Measured":
			m := n
			p.router.Measured = &m
		}
	}
	return nil
}

func (p *parser) flushRouter() {
	if p.router == nil {
		return
	}
	p.doc.Routers[p.router.Fingerprint] = p.router
	p.router = nil
}

func (p *parser) lastDirSource() *types.DirSource {
	if len(p.doc.DirSources) == 0 {
		return nil
	}
	return &p.doc.DirSources[len(p.doc.DirSources)-1]
}

func (p *parser) certificate() *types.KeyCertificate {
	if p.cert == nil {
		p.cert = &types.KeyCertificate{}
	}
	return p.cert
}

func (p *parser) atoi(args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, p.errorf("missing argument %d", i+1)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, p.errorf("argument %d is not an integer: %q", i+1, args[i])
	}
	return n, nil
}

func (p *parser) timestamp(args []string, dst *time.Time) error {
	if len(args) < 2 {
		return p.errorf("expected date and time")
	}
	t, err := time.ParseInLocation(timeLayout, args[0]+" "+args[1], time.UTC)
	if err != nil {
		return p.errorf("bad timestamp: %v", err)
	}
	*dst = t
	return nil
}

func splitList(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	var out []string
	for _, v := range strings.Split(strings.Join(args, ""), ",") {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// decodeIdentity turns an unpadded base64 relay identity into an upper-case
// hex fingerprint.
func decodeIdentity(s string) (string, error) {
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", err
	}
	if len(b) != 20 {
		return "", fmt.Errorf("identity is %d bytes, expected 20", len(b))
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
