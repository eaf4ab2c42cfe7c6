package checks

import (
	"strings"
	"time"

	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
	"github.com/tordoctor/doctor/internal/util"
)

// freshness is how old a consensus may be before it is considered stale.
const freshness = time.Hour

// staleErrorThreshold is the number of stale authorities above which the
// problem is an error rather than a warning.
const staleErrorThreshold = 3

// MissingLatestConsensus reports authorities serving a consensus more than an
// hour old.
func MissingLatestConsensus() Rule {
	return newRule("missing-latest-consensus",
		"Checks that none of the consensuses are more than an hour old",
		func(in *Input) ([]issue.Issue, error) {
			var stale []string
			for _, authority := range util.SortedKeys(in.Consensuses) {
				if in.Now.Sub(in.Consensuses[authority].ValidAfter) > freshness {
					stale = append(stale, authority)
				}
			}
			if len(stale) == 0 {
				return nil, nil
			}
			sev := types.SeverityWarning
			if len(stale) > staleErrorThreshold {
				sev = types.SeverityError
			}
			return []issue.Issue{issue.MustNew(sev, issue.MissingLatestConsensus, issue.Params{
				"authorities": strings.Join(stale, ", "),
			}, stale...)}, nil
		})
}

// ConsensusesHaveSameVotes reports fresh consensuses built from a different
// set of votes than the others.
func ConsensusesHaveSameVotes() Rule {
	return newRule("consensuses-have-same-votes",
		"Checks that all fresh consensuses are made up of the same votes",
		func(in *Input) ([]issue.Issue, error) {
			sources := map[string][]string{}
			var all []string
			for _, authority := range util.SortedKeys(in.Consensuses) {
				c := in.Consensuses[authority]
				if in.Now.Sub(c.ValidAfter) >= freshness {
					continue
				}
				ids := make([]string, 0, len(c.DirSources))
				for _, ds := range c.DirSources {
					ids = append(ids, ds.Identity)
				}
				sources[authority] = ids
				all = append(all, ids...)
			}

			var outliers []string
			for _, authority := range util.SortedKeys(sources) {
				if !util.EqualSets(sources[authority], all) {
					outliers = append(outliers, authority)
				}
			}
			if len(outliers) == 0 {
				return nil, nil
			}
			return []issue.Issue{issue.MustNew(types.SeverityNotice, issue.MissingVotes, issue.Params{
				"authorities": strings.Join(outliers, ", "),
			}, outliers...)}, nil
		})
}

// CertificateExpiration warns about authority key certificates close to
// expiring. The narrowest window is checked first.
func CertificateExpiration() Rule {
	tiers := []struct {
		within   time.Duration
		label    string
		severity types.Severity
	}{
		{7 * 24 * time.Hour, "week", types.SeverityWarning},
		{14 * 24 * time.Hour, "two weeks", types.SeverityWarning},
		{21 * 24 * time.Hour, "three weeks", types.SeverityNotice},
	}
	return newRule("certificate-expiration",
		"Checks if an authority's certificate is about to expire",
		func(in *Input) ([]issue.Issue, error) {
			var issues []issue.Issue
			for _, authority := range util.SortedKeys(in.Votes) {
				author := in.Votes[authority].Author()
				if author == nil || author.KeyCertificate == nil {
					continue
				}
				expires := author.KeyCertificate.Expires
				remaining := expires.Sub(in.Now)
				for _, tier := range tiers {
					if remaining > tier.within {
						continue
					}
					issues = append(issues, issue.MustNew(tier.severity, issue.CertificateAboutToExpire, issue.Params{
						"duration":  tier.label,
						"authority": authority + " (" + expires.UTC().Format("2006-01-02 15-04-05") + ")",
					}, authority))
					break
				}
			}
			return issues, nil
		})
}
