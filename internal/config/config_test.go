package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
)

func TestLoad(t *testing.T) {
	cfg, err := Load("testdata/doctor.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"bwweightscale", "CircuitPriorityHalflifeMsec"}, cfg.KnownParams)
	assert.Equal(t, []string{"unmeasured-relays"}, cfg.ExtraChecks)
	assert.Equal(t, []types.LegacyAddress{{Nickname: "dizum", Address: "194.109.206.212", DirPort: 80}}, cfg.LegacyAddresses)
	assert.Equal(t, []string{"team@example.org"}, cfg.NotifyAddress)
	assert.Equal(t, "errors@example.org", cfg.ErrorAddress)
	assert.Equal(t, "tor-misc@commit.noreply.org", cfg.AnnounceAddress)
	require.NotNil(t, cfg.SMTP)
	assert.Equal(t, "localhost:25", cfg.SMTP.Addr)
	require.NotNil(t, cfg.Webhook)
	assert.Equal(t, Duration(5*time.Second), cfg.Webhook.Timeout)
	assert.Equal(t, types.SeverityWarning, cfg.Webhook.Threshold())

	assert.Equal(t, Duration(12*time.Hour), cfg.Suppression["MISSING_SIGNATURE"])
	assert.Equal(t, Duration(48*time.Hour), cfg.Suppression["TOR_OUT_OF_DATE"])
	assert.Equal(t, Duration(30*time.Minute), cfg.Suppression["CHECK_FAILED"])
}

func TestConfig_Derived(t *testing.T) {
	cfg, err := Load("testdata/doctor.yaml")
	require.NoError(t, err)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	_, ok := reg.Get("tor26")
	assert.False(t, ok)
	_, ok = reg.Get("Serge")
	assert.False(t, ok)
	_, ok = reg.Get("moria1")
	assert.True(t, ok)

	contacts := cfg.Contacts()
	assert.Equal(t, &types.Destination{Address: "gabelmoo@example.org", BCC: true}, contacts.Destination("gabelmoo"))
	assert.Nil(t, contacts.Destination("dizum"))

	catalogue := cfg.MessageCatalogue()
	assert.Equal(t, "{authority} clock is off by {difference}s", catalogue[issue.ClockSkew])
	assert.Equal(t, issue.DefaultMessages()[issue.MissingVotes], catalogue[issue.MissingVotes])

	d := cfg.Durations()
	sig := issue.MustNew(types.SeverityWarning, issue.MissingSignature, issue.Params{"consensus_of": "moria1", "authorities": "dizum"})
	assert.Equal(t, 12*time.Hour, d.For(sig))
	assert.Equal(t, 48*time.Hour, d.Longest())

	r := issue.NewRenderer(catalogue, zap.NewNop())
	skew := issue.MustNew(types.SeverityNotice, issue.ClockSkew, issue.Params{"authority": "moria1", "difference": "42"})
	assert.Equal(t, "moria1 clock is off by 42s", r.Message(skew))
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, directory.DefaultExcluded, cfg.ExcludedAuthorities)
	assert.Equal(t, directory.DefaultBandwidthAuthorities, cfg.BandwidthAuthorities)
	assert.Nil(t, cfg.SMTP)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, directory.Default().Nicknames(), reg.Nicknames())
}

func TestParse_CustomAuthorities(t *testing.T) {
	cfg, err := Parse([]byte(`
authorities:
  - nickname: alpha
    address: 10.0.0.1
    or_port: 5000
    dir_port: 7000
    fingerprint: AAAA
    v3ident: BBBB
excluded_authorities: []
bandwidth_authorities: [alpha]
`))
	require.NoError(t, err)
	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, reg.Nicknames())
	a, _ := reg.Get("alpha")
	assert.Equal(t, 7000, a.DirPort)
	assert.True(t, a.IsVoting())
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("contact_adress:\n  moria1: a@example.org\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	_, err := Parse([]byte(`
messages:
  NOT_A_TEMPLATE: x
suppression:
  ALSO_NOT: 3
contact_address:
  nobody: not-an-address
contact_via_bcc: [dizum]
bandwidth_authorities: [ghost]
legacy_addresses:
  - nickname: phantom
    address: 192.0.2.1
    dir_port: 80
  - nickname: dizum
    address: 194.109.206.212
smtp:
  from: doctor@example.org
webhook:
  url: ftp://example.org
  min_severity: loud
`))
	require.Error(t, err)
	for _, want := range []string{
		`messages: unknown template "NOT_A_TEMPLATE"`,
		`suppression: unknown template "ALSO_NOT"`,
		`contact_address: unknown authority "nobody"`,
		`invalid address "not-an-address"`,
		`contact_via_bcc: "dizum" has no contact_address`,
		`bandwidth_authorities: unknown authority "ghost"`,
		`legacy_addresses: unknown authority "phantom"`,
		"legacy_addresses dizum: address and dir_port are required",
		"smtp.addr is required",
		"webhook.url",
		"webhook.min_severity",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"4", 4 * time.Hour, false},
		{"1.5", 90 * time.Minute, false},
		{"30m", 30 * time.Minute, false},
		{"0", 0, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
