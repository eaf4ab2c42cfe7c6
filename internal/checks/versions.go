package checks

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tordoctor/doctor/internal/document"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
	"github.com/tordoctor/doctor/internal/util"
)

// ConsensusMethodUnsupported reports votes that do not list the method the
// latest consensus was built with.
func ConsensusMethodUnsupported() Rule {
	return newRule("consensus-method-unsupported",
		"Checks that all of the votes support the present consensus method",
		func(in *Input) ([]issue.Issue, error) {
			var incompatible []string
			for _, authority := range util.SortedKeys(in.Votes) {
				if !in.Votes[authority].SupportsMethod(in.Latest.ConsensusMethod) {
					incompatible = append(incompatible, authority)
				}
			}
			if len(incompatible) == 0 {
				return nil, nil
			}
			return []issue.Issue{issue.MustNew(types.SeverityWarning, issue.ConsensusMethodUnsupported, issue.Params{
				"authorities": strings.Join(incompatible, ", "),
			}, incompatible...)}, nil
		})
}

// RecommendedClientVersion compares each vote's recommended client versions
// with the consensus.
func RecommendedClientVersion() Rule {
	return recommendedVersionRule("recommended-client-version", "client",
		func(d *types.Document) []string { return d.ClientVersions })
}

// RecommendedServerVersion compares each vote's recommended server versions
// with the consensus.
func RecommendedServerVersion() Rule {
	return recommendedVersionRule("recommended-server-version", "server",
		func(d *types.Document) []string { return d.ServerVersions })
}

func recommendedVersionRule(name, kind string, versions func(*types.Document) []string) Rule {
	return newRule(name,
		fmt.Sprintf("Checks that the recommended tor versions for %ss match the present consensus", kind),
		func(in *Input) ([]issue.Issue, error) {
			consensus := versions(&in.Latest.Document)
			var authorities, differences []string
			for _, authority := range util.SortedKeys(in.Votes) {
				vote := versions(&in.Votes[authority].Document)
				if len(vote) == 0 || util.EqualSets(consensus, vote) {
					continue
				}
				authorities = append(authorities, authority)
				differences = append(differences, versionDifference(authority, consensus, vote))
			}
			if len(differences) == 0 {
				return nil, nil
			}
			return []issue.Issue{issue.MustNew(types.SeverityNotice, issue.DifferentRecommendedVersion, issue.Params{
				"type":        kind,
				"differences": strings.Join(differences, ", "),
			}, authorities...)}, nil
		})
}

// versionDifference renders the delta of a vote against the consensus, for
// instance "moria1 +1.0.0.1-dev -0.0.8.6".
func versionDifference(authority string, consensus, vote []string) string {
	var b strings.Builder
	b.WriteString(authority)
	for _, v := range util.Difference(vote, consensus) {
		b.WriteString(" +" + v)
	}
	for _, v := range util.Difference(consensus, vote) {
		b.WriteString(" -" + v)
	}
	return b.String()
}

// IsRecommendedVersion reports authorities whose relay runs a tor older than
// every recommended server version.
func IsRecommendedVersion(env Env) Rule {
	return newRule("is-recommended-version",
		"Checks that the authorities are running a recommended version or higher",
		func(in *Input) ([]issue.Issue, error) {
			var lowest *document.Version
			for _, raw := range in.Latest.ServerVersions {
				v, err := document.ParseVersion(raw)
				if err != nil {
					continue
				}
				if lowest == nil || v.Less(*lowest) {
					lowest = &v
				}
			}
			if lowest == nil {
				return nil, nil
			}

			var outdated, entries []string
			for _, a := range env.Registry.All() {
				desc, ok := in.Latest.Routers[a.Fingerprint]
				if !ok || desc.Version == "" {
					continue
				}
				v, err := document.ParseVersion(desc.Version)
				if err != nil || !v.Less(*lowest) {
					continue
				}
				outdated = append(outdated, a.Nickname)
				entries = append(entries, fmt.Sprintf("%s (%s)", a.Nickname, desc.Version))
			}
			if len(outdated) == 0 {
				return nil, nil
			}
			return []issue.Issue{issue.MustNew(types.SeverityWarning, issue.TorOutOfDate, issue.Params{
				"authorities": strings.Join(entries, ", "),
			}, outdated...)}, nil
		})
}

// UnknownConsensusParameters reports votes setting parameters outside the
// known list. Parameters prefixed with "bwauth" are always accepted.
func UnknownConsensusParameters(env Env) Rule {
	known := make(map[string]struct{}, len(env.KnownParams))
	for _, p := range env.KnownParams {
		known[p] = struct{}{}
	}
	return newRule("unknown-consensus-parameters",
		"Checks that votes don't contain any parameters that we don't recognize",
		func(in *Input) ([]issue.Issue, error) {
			return paramsIssue(in, issue.UnknownConsensusParameters, func(key string, _ int64) bool {
				if strings.HasPrefix(key, "bwauth") {
					return false
				}
				_, ok := known[key]
				return !ok
			}), nil
		})
}

// VoteParametersMismatch reports vote parameters whose value differs from the
// latest consensus or that the consensus lacks.
func VoteParametersMismatch() Rule {
	return newRule("vote-parameters-mismatch",
		"Checks that all vote parameters appear in the consensus",
		func(in *Input) ([]issue.Issue, error) {
			return paramsIssue(in, issue.MismatchConsensusParameters, func(key string, value int64) bool {
				v, ok := in.Latest.Params[key]
				return !ok || v != value
			}), nil
		})
}

func paramsIssue(in *Input, tmpl issue.Template, flagged func(key string, value int64) bool) []issue.Issue {
	var authorities, entries []string
	for _, authority := range util.SortedKeys(in.Votes) {
		params := in.Votes[authority].Params
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var bad []string
		for _, k := range keys {
			if flagged(k, params[k]) {
				bad = append(bad, k+"="+strconv.FormatInt(params[k], 10))
			}
		}
		if len(bad) > 0 {
			authorities = append(authorities, authority)
			entries = append(entries, authority+" "+strings.Join(bad, " "))
		}
	}
	if len(entries) == 0 {
		return nil
	}
	return []issue.Issue{issue.MustNew(types.SeverityNotice, tmpl, issue.Params{
		"parameters": strings.Join(entries, ", "),
	}, authorities...)}
}
