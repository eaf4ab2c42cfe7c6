package checks

import (
	"strconv"

	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
	"github.com/tordoctor/doctor/internal/util"
)

// The shared random protocol commits between 00:00 and 12:00 UTC and reveals
// between 12:00 and 00:00. Checks run near the end of each phase, once every
// authority has had the chance to take part.
const (
	commitCheckStartHour = 8
	commitCheckEndHour   = 12
	revealCheckStartHour = 20
)

// SharedRandomPresent reports a latest consensus without the current or
// previous shared random value. Onion services cannot work without them.
func SharedRandomPresent() Rule {
	return newRule("shared-random-present",
		"Checks that the consensus has shared randomness values",
		func(in *Input) ([]issue.Issue, error) {
			var issues []issue.Issue
			if in.Latest.SharedRandomCurrent == nil {
				issues = append(issues, issue.MustNew(types.SeverityError, issue.CurrentSharedRandomMissing, nil))
			}
			if in.Latest.SharedRandomPrevious == nil {
				issues = append(issues, issue.MustNew(types.SeverityError, issue.PreviousSharedRandomMissing, nil))
			}
			return issues, nil
		})
}

// commitments returns the author's commitment list of a vote, or nil.
func commitments(v *types.Vote) []types.SharedRandomCommitment {
	if a := v.Author(); a != nil {
		return a.SharedRandomCommitments
	}
	return nil
}

// SharedRandomCommitPartitioning reports votes echoing a commitment that
// differs from what its owner reports for itself. Authorities whose own vote
// carries no self-commitment are not compared.
func SharedRandomCommitPartitioning(env Env) Rule {
	return newRule("shared-random-commit-partitioning",
		"Checks that each authority's commitment matches the votes from other authorities",
		func(in *Input) ([]issue.Issue, error) {
			if h := in.Now.UTC().Hour(); h < commitCheckStartHour || h >= commitCheckEndHour {
				return nil, nil
			}
			authorities := util.SortedKeys(in.Votes)

			self := map[string]string{}
			for _, authority := range authorities {
				a, ok := env.Registry.Get(authority)
				if !ok || !a.IsVoting() {
					continue
				}
				for _, c := range commitments(in.Votes[authority]) {
					if c.Identity == a.V3Ident {
						self[a.V3Ident] = c.Commit
						break
					}
				}
			}

			var issues []issue.Issue
			for _, authority := range authorities {
				for _, c := range commitments(in.Votes[authority]) {
					theirs, ok := self[c.Identity]
					if !ok || c.Commit == theirs {
						continue
					}
					issues = append(issues, issue.MustNew(types.SeverityWarning, issue.SharedRandomCommitmentMismatch, issue.Params{
						"authority":     authority,
						"their_v3ident": c.Identity,
						"our_value":     c.Commit,
						"their_value":   theirs,
					}, authority))
				}
			}
			return issues, nil
		})
}

// SharedRandomRevealPartitioning checks that every authority reveals exactly
// once in its own vote and that every vote echoes that reveal exactly once
// and unchanged.
func SharedRandomRevealPartitioning(env Env) Rule {
	return newRule("shared-random-reveal-partitioning",
		"Checks that each authority's vote has all reveals during the reveal phase",
		func(in *Input) ([]issue.Issue, error) {
			if in.Now.UTC().Hour() < revealCheckStartHour {
				return nil, nil
			}
			authorities := util.SortedKeys(in.Votes)

			type reveal struct{ v3ident, value string }
			var reveals []reveal
			var issues []issue.Issue
			for _, authority := range authorities {
				a, ok := env.Registry.Get(authority)
				if !ok || !a.IsVoting() {
					continue
				}
				var own []string
				for _, c := range commitments(in.Votes[authority]) {
					if c.Identity == a.V3Ident && c.Reveal != "" {
						own = append(own, c.Reveal)
					}
				}
				switch len(own) {
				case 0:
					issues = append(issues, issue.MustNew(types.SeverityWarning, issue.SharedRandomNoReveal, issue.Params{
						"authority": authority,
					}, authority))
				case 1:
					reveals = append(reveals, reveal{v3ident: a.V3Ident, value: own[0]})
				default:
					issues = append(issues, issue.MustNew(types.SeverityWarning, issue.SharedRandomMultipleReveal, issue.Params{
						"authority": authority,
						"count":     strconv.Itoa(len(own)),
					}, authority))
				}
			}

			for _, authority := range authorities {
				listed := commitments(in.Votes[authority])
				for _, r := range reveals {
					var matches []string
					for _, c := range listed {
						if c.Identity == r.v3ident {
							matches = append(matches, c.Reveal)
						}
					}
					switch {
					case len(matches) == 0:
						issues = append(issues, issue.MustNew(types.SeverityWarning, issue.SharedRandomRevealMissing, issue.Params{
							"authority":     authority,
							"their_v3ident": r.v3ident,
							"their_value":   r.value,
						}, authority))
					case len(matches) > 1:
						issues = append(issues, issue.MustNew(types.SeverityWarning, issue.SharedRandomRevealDuplicated, issue.Params{
							"authority":     authority,
							"their_v3ident": r.v3ident,
						}, authority))
					case matches[0] != r.value:
						issues = append(issues, issue.MustNew(types.SeverityWarning, issue.SharedRandomRevealMismatch, issue.Params{
							"authority":     authority,
							"their_v3ident": r.v3ident,
							"our_value":     matches[0],
							"their_value":   r.value,
						}, authority))
					}
				}
			}
			return issues, nil
		})
}
