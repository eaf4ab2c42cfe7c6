package checks

import (
	"strconv"
	"strings"

	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
	"github.com/tordoctor/doctor/internal/util"
)

// flagCountTolerance bounds each vote's count of a flag to within this
// fraction of the consensus count.
const flagCountTolerance = 0.5

// unstableFlags are skipped by the flag count comparison. BadExit and
// StaleDesc are only voted on by a few authorities, Running isn't voted on
// when an authority first starts up, and HSDir thresholds are often
// experimented with.
var unstableFlags = map[string]struct{}{
	types.FlagBadExit:   {},
	types.FlagRunning:   {},
	types.FlagHSDir:     {},
	types.FlagStaleDesc: {},
}

func countFlags(routers map[string]*types.RouterStatus) map[string]int {
	counts := map[string]int{}
	for _, r := range routers {
		for _, f := range r.Flags {
			counts[f]++
		}
	}
	return counts
}

// HasSimilarFlagCounts reports authorities whose vote assigns a flag to
// substantially more or fewer relays than the consensus.
func HasSimilarFlagCounts() Rule {
	return newRule("has-similar-flag-counts",
		"Checks that flags issued by authorities are similar",
		func(in *Input) ([]issue.Issue, error) {
			consensus := countFlags(in.Latest.Routers)
			flags := util.SortedKeys(consensus)

			var issues []issue.Issue
			for _, authority := range util.SortedKeys(in.Votes) {
				vote := countFlags(in.Votes[authority].Routers)
				for _, flag := range flags {
					if _, skip := unstableFlags[flag]; skip {
						continue
					}
					count := float64(consensus[flag])
					voteCount := vote[flag]
					if float64(voteCount) <= count*(1+flagCountTolerance) && float64(voteCount) >= count*(1-flagCountTolerance) {
						continue
					}
					issues = append(issues, issue.MustNew(types.SeverityNotice, issue.FlagCountDiffers, issue.Params{
						"authority":       authority,
						"flag":            flag,
						"consensus_count": strconv.Itoa(consensus[flag]),
						"vote_count":      strconv.Itoa(voteCount),
					}, authority))
				}
			}
			return issues, nil
		})
}

// BadExitsInSync reports relays that some, but not all, of the authorities
// voting on BadExit have flagged. Authorities that flag nothing do not vote on
// BadExit and are ignored. Authorities whose vote lacks the relay are listed
// but take no side. Relays missing from the latest consensus are skipped as
// churn. The side that disagrees with the consensus is notified.
func BadExitsInSync() Rule {
	return newRule("bad-exits-in-sync",
		"Checks that the authorities that vote on the BadExit flag are in agreement",
		func(in *Input) ([]issue.Issue, error) {
			flagged := map[string]map[string]struct{}{}
			for authority, vote := range in.Votes {
				for fp, r := range vote.Routers {
					if !r.HasFlag(types.FlagBadExit) {
						continue
					}
					if flagged[authority] == nil {
						flagged[authority] = map[string]struct{}{}
					}
					flagged[authority][fp] = struct{}{}
				}
			}
			if len(flagged) == 0 {
				return nil, nil
			}
			voters := util.SortedKeys(flagged)

			union := map[string]struct{}{}
			for _, set := range flagged {
				for fp := range set {
					union[fp] = struct{}{}
				}
			}

			var issues []issue.Issue
			for _, fp := range util.SortedKeys(union) {
				var withFlag, withoutFlag, notInVote []string
				for _, authority := range voters {
					switch _, has := flagged[authority][fp]; {
					case has:
						withFlag = append(withFlag, authority)
					case in.Votes[authority].Routers[fp] != nil:
						withoutFlag = append(withoutFlag, authority)
					default:
						notInVote = append(notInVote, authority)
					}
				}
				if len(withoutFlag) == 0 {
					continue
				}
				desc, ok := in.Latest.Routers[fp]
				if !ok {
					continue
				}

				counts := []string{
					"with flag: " + strings.Join(withFlag, ", "),
					"without flag: " + strings.Join(withoutFlag, ", "),
				}
				if len(notInVote) > 0 {
					counts = append(counts, "not in vote: "+strings.Join(notInVote, ", "))
				}
				noticeFor := withFlag
				if desc.HasFlag(types.FlagBadExit) {
					noticeFor = withoutFlag
				}
				issues = append(issues, issue.MustNew(types.SeverityNotice, issue.BadExitOutOfSync, issue.Params{
					"fingerprint": fp,
					"counts":      strings.Join(counts, ", "),
				}, noticeFor...))
			}
			return issues, nil
		})
}
