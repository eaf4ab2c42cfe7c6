package issue

import "sort"

// Template identifies the kind of problem an Issue reports. The set is closed;
// every template has a parameter schema in schemas.
type Template string

const (
	AuthorityUnavailable           Template = "AUTHORITY_UNAVAILABLE"
	Latency                        Template = "LATENCY"
	ClockSkew                      Template = "CLOCK_SKEW"
	UnableToReachORPort            Template = "UNABLE_TO_REACH_ORPORT"
	LegacyAddressUnavailable       Template = "LEGACY_ADDRESS_UNAVAILABLE"
	MissingLatestConsensus         Template = "MISSING_LATEST_CONSENSUS"
	MissingAuthorityDesc           Template = "MISSING_AUTHORITY_DESC"
	ConsensusMethodUnsupported     Template = "CONSENSUS_METHOD_UNSUPPORTED"
	DifferentRecommendedVersion    Template = "DIFFERENT_RECOMMENDED_VERSION"
	UnknownConsensusParameters     Template = "UNKNOWN_CONSENSUS_PARAMETERS"
	MismatchConsensusParameters    Template = "MISMATCH_CONSENSUS_PARAMETERS"
	CertificateAboutToExpire       Template = "CERTIFICATE_ABOUT_TO_EXPIRE"
	MissingVotes                   Template = "MISSING_VOTES"
	MissingSignature               Template = "MISSING_SIGNATURE"
	MissingBandwidthScanners       Template = "MISSING_BANDWIDTH_SCANNERS"
	ExtraBandwidthScanners         Template = "EXTRA_BANDWIDTH_SCANNERS"
	TooManyUnmeasuredRelays        Template = "TOO_MANY_UNMEASURED_RELAYS"
	MissingAuthorities             Template = "MISSING_AUTHORITIES"
	ExtraAuthorities               Template = "EXTRA_AUTHORITIES"
	FlagCountDiffers               Template = "FLAG_COUNT_DIFFERS"
	TorOutOfDate                   Template = "TOR_OUT_OF_DATE"
	BadExitOutOfSync               Template = "BADEXIT_OUT_OF_SYNC"
	BandwidthAuthoritiesOutOfSync  Template = "BANDWIDTH_AUTHORITIES_OUT_OF_SYNC"
	CurrentSharedRandomMissing     Template = "CURRENT_SHARED_RANDOM_MISSING"
	PreviousSharedRandomMissing    Template = "PREVIOUS_SHARED_RANDOM_MISSING"
	SharedRandomCommitmentMismatch Template = "SHARED_RANDOM_COMMITMENT_MISMATCH"
	SharedRandomNoReveal           Template = "SHARED_RANDOM_NO_REVEAL"
	SharedRandomMultipleReveal     Template = "SHARED_RANDOM_MULTIPLE_REVEAL"
	SharedRandomRevealMissing      Template = "SHARED_RANDOM_REVEAL_MISSING"
	SharedRandomRevealDuplicated   Template = "SHARED_RANDOM_REVEAL_DUPLICATED"
	SharedRandomRevealMismatch     Template = "SHARED_RANDOM_REVEAL_MISMATCH"
	CheckFailed                    Template = "CHECK_FAILED"
)

// schema lists the parameters a template needs. Volatile parameters carry
// magnitudes that fluctuate between runs; they are replaced by their blank
// value before deriving the suppression key.
type schema struct {
	required []string
	volatile map[string]string
}

var schemas = map[Template]schema{
	AuthorityUnavailable: {required: []string{"fetch_type", "authority", "url", "error"}},
	Latency: {
		required: []string{"authority", "time_taken", "median_time", "authority_times"},
		volatile: map[string]string{"authority": "", "time_taken": "", "median_time": "", "authority_times": ""},
	},
	ClockSkew: {
		required: []string{"authority", "difference"},
		volatile: map[string]string{"authority": "", "difference": ""},
	},
	UnableToReachORPort:         {required: []string{"authority", "address", "port", "error"}},
	LegacyAddressUnavailable:    {required: []string{"authority", "address", "error"}},
	MissingLatestConsensus:      {required: []string{"authorities"}},
	MissingAuthorityDesc:        {required: []string{"authority", "peer"}},
	ConsensusMethodUnsupported:  {required: []string{"authorities"}},
	DifferentRecommendedVersion: {required: []string{"type", "differences"}},
	UnknownConsensusParameters:  {required: []string{"parameters"}},
	MismatchConsensusParameters: {required: []string{"parameters"}},
	CertificateAboutToExpire:    {required: []string{"duration", "authority"}},
	MissingVotes:                {required: []string{"authorities"}},
	MissingSignature:            {required: []string{"consensus_of", "authorities"}},
	MissingBandwidthScanners:    {required: []string{"authorities"}},
	ExtraBandwidthScanners:      {required: []string{"authorities"}},
	TooManyUnmeasuredRelays: {
		required: []string{"authority", "unmeasured", "total", "percentage"},
		volatile: map[string]string{"unmeasured": "0", "total": "0", "percentage": "0"},
	},
	MissingAuthorities: {required: []string{"authorities"}},
	ExtraAuthorities:   {required: []string{"authorities"}},
	FlagCountDiffers: {
		required: []string{"authority", "flag", "consensus_count", "vote_count"},
		volatile: map[string]string{"consensus_count": "0", "vote_count": "0"},
	},
	TorOutOfDate:     {required: []string{"authorities"}},
	BadExitOutOfSync: {required: []string{"fingerprint", "counts"}},
	BandwidthAuthoritiesOutOfSync: {
		required: []string{"authorities"},
		volatile: map[string]string{"authorities": ""},
	},
	CurrentSharedRandomMissing:     {},
	PreviousSharedRandomMissing:    {},
	SharedRandomCommitmentMismatch: {required: []string{"authority", "their_v3ident", "our_value", "their_value"}},
	SharedRandomNoReveal:           {required: []string{"authority"}},
	SharedRandomMultipleReveal:     {required: []string{"authority", "count"}},
	SharedRandomRevealMissing:      {required: []string{"authority", "their_v3ident", "their_value"}},
	SharedRandomRevealDuplicated:   {required: []string{"authority", "their_v3ident"}},
	SharedRandomRevealMismatch:     {required: []string{"authority", "their_v3ident", "our_value", "their_value"}},
	CheckFailed:                    {required: []string{"check", "error"}},
}

// Valid reports whether t belongs to the closed template set.
func (t Template) Valid() bool {
	_, ok := schemas[t]
	return ok
}

// Required returns the parameter names the template must be built with.
func (t Template) Required() []string {
	s := schemas[t]
	out := make([]string, len(s.required))
	copy(out, s.required)
	return out
}

// IsVolatile reports whether the named parameter is excluded from
// deduplication for this template.
func (t Template) IsVolatile(param string) bool {
	_, ok := schemas[t].volatile[param]
	return ok
}

// Templates returns every template in lexical order.
func Templates() []Template {
	out := make([]Template, 0, len(schemas))
	for t := range schemas {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
