package checks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
	"github.com/tordoctor/doctor/internal/util"
)

const (
	// missingScannerErrorThreshold is the number of silent bandwidth
	// authorities above which the problem is an error.
	missingScannerErrorThreshold = 1
	// unmeasuredPercentThreshold is the share of unmeasured relays a bandwidth
	// authority may have before it is reported.
	unmeasuredPercentThreshold = 5.0
	// measurementTolerance is the allowed deviation from the mean number of
	// measurements across bandwidth authorities.
	measurementTolerance = 0.2
)

func hasMeasurements(v *types.Vote) bool {
	for _, r := range v.Routers {
		if r.Measured != nil {
			return true
		}
	}
	return false
}

// VotingBandwidthScanners reports bandwidth authorities whose vote has no
// measured entries, and other authorities whose vote does.
func VotingBandwidthScanners(env Env) Rule {
	return newRule("voting-bandwidth-scanners",
		"Checks that we have bandwidth scanner results from the authorities that vote on it",
		func(in *Input) ([]issue.Issue, error) {
			var missing, extra []string
			for _, authority := range util.SortedKeys(in.Votes) {
				measured := hasMeasurements(in.Votes[authority])
				expected := env.isBandwidthAuthority(authority)
				switch {
				case expected && !measured:
					missing = append(missing, authority)
				case !expected && measured:
					extra = append(extra, authority)
				}
			}

			var issues []issue.Issue
			if len(missing) > 0 {
				sev := types.SeverityNotice
				if len(missing) > missingScannerErrorThreshold {
					sev = types.SeverityError
				}
				issues = append(issues, issue.MustNew(sev, issue.MissingBandwidthScanners, issue.Params{
					"authorities": strings.Join(missing, ", "),
				}, missing...))
			}
			if len(extra) > 0 {
				issues = append(issues, issue.MustNew(types.SeverityNotice, issue.ExtraBandwidthScanners, issue.Params{
					"authorities": strings.Join(extra, ", "),
				}, extra...))
			}
			return issues, nil
		})
}

// UnmeasuredRelays reports bandwidth authorities lacking a measurement for at
// least five percent of the relays in the latest consensus.
func UnmeasuredRelays(env Env) Rule {
	return newRule("unmeasured-relays",
		"Checks that the bandwidth authorities have formed an opinion about nearly all relays",
		func(in *Input) ([]issue.Issue, error) {
			var issues []issue.Issue
			for _, authority := range util.SortedKeys(in.Votes) {
				if !env.isBandwidthAuthority(authority) {
					continue
				}
				var measured, unmeasured int
				for fp, r := range in.Votes[authority].Routers {
					if _, ok := in.Latest.Routers[fp]; !ok {
						continue
					}
					if r.Measured != nil {
						measured++
					} else {
						unmeasured++
					}
				}
				total := measured + unmeasured
				if total == 0 {
					continue
				}
				percentage := 100 * float64(unmeasured) / float64(total)
				if percentage < unmeasuredPercentThreshold {
					continue
				}
				issues = append(issues, issue.MustNew(types.SeverityNotice, issue.TooManyUnmeasuredRelays, issue.Params{
					"authority":  authority,
					"unmeasured": strconv.Itoa(unmeasured),
					"total":      strconv.Itoa(total),
					"percentage": strconv.FormatFloat(percentage, 'f', 1, 64),
				}, authority))
			}
			return issues, nil
		})
}

// BandwidthAuthoritiesInSync reports when any authority's number of measured
// relays deviates more than 20% from the mean. A single issue lists every
// authority's count.
func BandwidthAuthoritiesInSync() Rule {
	return newRule("bandwidth-authorities-in-sync",
		"Checks that the bandwidth authorities are reporting roughly the same number of measurements",
		func(in *Input) ([]issue.Issue, error) {
			counts := map[string]int{}
			for authority, vote := range in.Votes {
				n := 0
				for _, r := range vote.Routers {
					if r.Measured != nil {
						n++
					}
				}
				if n > 0 {
					counts[authority] = n
				}
			}
			if len(counts) == 0 {
				return nil, nil
			}

			authorities := util.SortedKeys(counts)
			values := make(stats.Float64Data, 0, len(counts))
			for _, a := range authorities {
				values = append(values, float64(counts[a]))
			}
			mean, err := stats.Mean(values)
			if err != nil {
				return nil, fmt.Errorf("averaging measurement counts: %w", err)
			}

			outOfSync := false
			for _, v := range values {
				if v > (1+measurementTolerance)*mean || v < (1-measurementTolerance)*mean {
					outOfSync = true
					break
				}
			}
			if !outOfSync {
				return nil, nil
			}
			entries := make([]string, 0, len(authorities))
			for _, a := range authorities {
				entries = append(entries, fmt.Sprintf("%s (%d)", a, counts[a]))
			}
			return []issue.Issue{issue.MustNew(types.SeverityNotice, issue.BandwidthAuthoritiesOutOfSync, issue.Params{
				"authorities": strings.Join(entries, ", "),
			}, authorities...)}, nil
		})
}
