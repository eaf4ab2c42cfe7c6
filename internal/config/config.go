// Package config loads the doctor.yaml data file: message catalogue,
// suppression overrides, authority contacts and notification channels.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"sigs.k8s.io/yaml"

	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
)

// Config is the parsed data file.
type Config struct {
	// Messages overrides entries of the built-in message catalogue.
	Messages map[string]string `json:"messages,omitempty"`
	// Suppression overrides how long a template stays quiet after a
	// notification.
	Suppression map[string]Duration `json:"suppression,omitempty"`
	KnownParams []string            `json:"known_params,omitempty"`

	ContactAddress map[string]string `json:"contact_address,omitempty"`
	ContactViaBCC  []string          `json:"contact_via_bcc,omitempty"`

	// Authorities replaces the built-in authority list when set.
	Authorities          []types.Authority `json:"authorities,omitempty"`
	ExcludedAuthorities  []string          `json:"excluded_authorities"`
	BandwidthAuthorities []string          `json:"bandwidth_authorities"`
	// ExtraChecks enables optional rules by name.
	ExtraChecks []string `json:"extra_checks,omitempty"`
	// LegacyAddresses lists former DirPort addresses that should keep
	// serving their authority's descriptor.
	LegacyAddresses []types.LegacyAddress `json:"legacy_addresses,omitempty"`

	// NotifyAddress receives every detailed notification.
	NotifyAddress []string `json:"notify_address,omitempty"`
	// ErrorAddress receives failure reports of the tool itself.
	ErrorAddress    string `json:"error_address,omitempty"`
	AnnounceAddress string `json:"announce_address"`

	SMTP    *SMTP    `json:"smtp,omitempty"`
	Webhook *Webhook `json:"webhook,omitempty"`
}

// SMTP configures mail delivery.
type SMTP struct {
	Addr     string `json:"addr"`
	From     string `json:"from"`
	Username string `json:"username,omitempty"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `json:"password_env,omitempty"`
	Retries     int    `json:"retries,omitempty"`
}

// Webhook configures webhook delivery.
type Webhook struct {
	URL                string   `json:"url"`
	Timeout            Duration `json:"timeout,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"`
	// MinSeverity is NOTICE, WARNING or ERROR.
	MinSeverity string `json:"min_severity,omitempty"`
	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `json:"token_env,omitempty"`
}

// Duration accepts a number of hours (3 or "3") or a Go duration ("90m").
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var hours float64
	if err := json.Unmarshal(b, &hours); err == nil {
		*d = Duration(time.Duration(hours * float64(time.Hour)))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a number of hours or a string: %s", b)
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ParseDuration parses hours ("4") or a Go duration ("30m").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if hours, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(hours * float64(time.Hour)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Default returns the configuration used when a field is left out.
func Default() *Config {
	return &Config{
		ExcludedAuthorities:  append([]string(nil), directory.DefaultExcluded...),
		BandwidthAuthorities: append([]string(nil), directory.DefaultBandwidthAuthorities...),
		AnnounceAddress:      "tor-misc@commit.noreply.org",
	}
}

// Load reads and validates a configuration file. Unknown fields are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	for name := range c.Messages {
		if !issue.Template(name).Valid() {
			result = multierror.Append(result, fmt.Errorf("messages: unknown template %q", name))
		}
	}
	for name, d := range c.Suppression {
		if !issue.Template(name).Valid() {
			result = multierror.Append(result, fmt.Errorf("suppression: unknown template %q", name))
		}
		if d < 0 {
			result = multierror.Append(result, fmt.Errorf("suppression: negative duration for %q", name))
		}
	}

	reg, err := c.baseRegistry()
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("authorities: %w", err))
	} else {
		for _, n := range c.BandwidthAuthorities {
			if _, ok := reg.Get(n); !ok {
				result = multierror.Append(result, fmt.Errorf("bandwidth_authorities: unknown authority %q", n))
			}
		}
		for n := range c.ContactAddress {
			if _, ok := reg.Get(n); !ok {
				result = multierror.Append(result, fmt.Errorf("contact_address: unknown authority %q", n))
			}
		}
		for _, la := range c.LegacyAddresses {
			if _, ok := reg.Get(la.Nickname); !ok {
				result = multierror.Append(result, fmt.Errorf("legacy_addresses: unknown authority %q", la.Nickname))
			}
		}
	}
	for _, la := range c.LegacyAddresses {
		if la.Address == "" || la.DirPort <= 0 || la.DirPort > 65535 {
			result = multierror.Append(result, fmt.Errorf("legacy_addresses %s: address and dir_port are required", la.Nickname))
		}
	}

	for n, addr := range c.ContactAddress {
		if err := checkAddress(addr); err != nil {
			result = multierror.Append(result, fmt.Errorf("contact_address %s: %w", n, err))
		}
	}
	for _, n := range c.ContactViaBCC {
		if _, ok := c.ContactAddress[n]; !ok {
			result = multierror.Append(result, fmt.Errorf("contact_via_bcc: %q has no contact_address", n))
		}
	}
	for _, addr := range c.NotifyAddress {
		if err := checkAddress(addr); err != nil {
			result = multierror.Append(result, fmt.Errorf("notify_address: %w", err))
		}
	}
	if c.ErrorAddress != "" {
		if err := checkAddress(c.ErrorAddress); err != nil {
			result = multierror.Append(result, fmt.Errorf("error_address: %w", err))
		}
	}
	if c.AnnounceAddress != "" {
		if err := checkAddress(c.AnnounceAddress); err != nil {
			result = multierror.Append(result, fmt.Errorf("announce_address: %w", err))
		}
	}

	if c.SMTP != nil {
		if c.SMTP.Addr == "" {
			result = multierror.Append(result, errors.New("smtp.addr is required"))
		}
		if err := checkAddress(c.SMTP.From); err != nil {
			result = multierror.Append(result, fmt.Errorf("smtp.from: %w", err))
		}
		if c.SMTP.Retries < 0 {
			result = multierror.Append(result, errors.New("smtp.retries must not be negative"))
		}
	}
	if c.Webhook != nil {
		if u, err := url.Parse(c.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("webhook.url %q must be an http(s) URL", c.Webhook.URL))
		}
		if c.Webhook.MinSeverity != "" {
			if _, err := types.ParseSeverity(c.Webhook.MinSeverity); err != nil {
				result = multierror.Append(result, fmt.Errorf("webhook.min_severity: %w", err))
			}
		}
	}

	return result.ErrorOrNil()
}

func checkAddress(addr string) error {
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("invalid address %q", addr)
	}
	return nil
}

// baseRegistry is the configured or built-in authority list before
// exclusions.
func (c *Config) baseRegistry() (*directory.Registry, error) {
	if len(c.Authorities) == 0 {
		return directory.MustNew(directory.DefaultAuthorities), nil
	}
	return directory.New(c.Authorities)
}

// Registry returns the audited authorities with exclusions removed.
func (c *Config) Registry() (*directory.Registry, error) {
	reg, err := c.baseRegistry()
	if err != nil {
		return nil, err
	}
	return reg.Without(c.ExcludedAuthorities...), nil
}

// Contacts builds the contact directory.
func (c *Config) Contacts() *directory.Contacts {
	return directory.NewContacts(c.ContactAddress, c.ContactViaBCC)
}

// MessageCatalogue merges the configured messages over the built-in ones.
func (c *Config) MessageCatalogue() map[issue.Template]string {
	out := issue.DefaultMessages()
	for name, msg := range c.Messages {
		out[issue.Template(name)] = msg
	}
	return out
}

// Durations returns the suppression durations with overrides applied.
func (c *Config) Durations() issue.Durations {
	overrides := make(map[issue.Template]time.Duration, len(c.Suppression))
	for name, d := range c.Suppression {
		overrides[issue.Template(name)] = time.Duration(d)
	}
	return issue.NewDurations(overrides)
}

// Threshold parses the webhook threshold, NOTICE when unset.
func (w *Webhook) Threshold() types.Severity {
	if w.MinSeverity == "" {
		return types.SeverityNotice
	}
	s, err := types.ParseSeverity(w.MinSeverity)
	if err != nil {
		return types.SeverityNotice
	}
	return s
}
