package checks

import (
	"strings"

	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
	"github.com/tordoctor/doctor/internal/util"
)

// MissingAuthorityDescriptor reports votes that lack the router entry of a
// known authority. This happens when an authority rotates its Ed25519 key and
// its peers still hold the old one.
func MissingAuthorityDescriptor(env Env) Rule {
	return newRule("missing-authority-descriptor",
		"Checks that each authority has server descriptors for the others",
		func(in *Input) ([]issue.Issue, error) {
			var issues []issue.Issue
			for _, authority := range util.SortedKeys(in.Votes) {
				vote := in.Votes[authority]
				for _, peer := range env.Registry.All() {
					if _, ok := vote.Routers[peer.Fingerprint]; ok {
						continue
					}
					issues = append(issues, issue.MustNew(types.SeverityWarning, issue.MissingAuthorityDesc, issue.Params{
						"authority": authority,
						"peer":      peer.Nickname,
					}, authority))
				}
			}
			return issues, nil
		})
}

// HasAllSignatures reports consensuses lacking the signature of a voting
// authority. Missing signers are named by nickname where known.
func HasAllSignatures(env Env) Rule {
	return newRule("has-all-signatures",
		"Checks that the consensuses have signatures for authorities that voted on it",
		func(in *Input) ([]issue.Issue, error) {
			var voting []string
			for _, a := range env.Registry.Voting() {
				voting = append(voting, a.V3Ident)
			}

			var issues []issue.Issue
			for _, consensusOf := range util.SortedKeys(in.Consensuses) {
				var signers []string
				for _, sig := range in.Consensuses[consensusOf].Signatures {
					signers = append(signers, strings.ToUpper(sig.Identity))
				}
				missing := util.Difference(voting, signers)
				if len(missing) == 0 {
					continue
				}
				names := make([]string, 0, len(missing))
				for _, id := range missing {
					names = append(names, env.Registry.NicknameFor(id))
				}
				names = util.Difference(names, nil)
				issues = append(issues, issue.MustNew(types.SeverityNotice, issue.MissingSignature, issue.Params{
					"consensus_of": consensusOf,
					"authorities":  strings.Join(names, ", "),
				}, names...))
			}
			return issues, nil
		})
}

// HasAuthorityFlag reports voting authorities without the Authority flag in
// the latest consensus, and relays carrying it that are not registered
// authorities.
// Excluded authorities are ignored on both sides.
func HasAuthorityFlag(env Env) Rule {
	return newRule("has-authority-flag",
		"Checks that the authorities have the 'Authority' flag in the present consensus",
		func(in *Input) ([]issue.Issue, error) {
			var seen []string
			for _, desc := range in.Latest.Routers {
				if desc.HasFlag(types.FlagAuthority) {
					seen = append(seen, desc.Nickname)
				}
			}
			seen = util.Difference(seen, env.Excluded)

			var voting []string
			for _, a := range env.Registry.Voting() {
				voting = append(voting, a.Nickname)
			}
			// Non-voting authorities such as the bridge authority may carry
			// the flag without being extra.
			known := env.Registry.Nicknames()

			var issues []issue.Issue
			if missing := util.Difference(voting, seen); len(missing) > 0 {
				issues = append(issues, issue.MustNew(types.SeverityWarning, issue.MissingAuthorities, issue.Params{
					"authorities": strings.Join(missing, ", "),
				}, missing...))
			}
			if extra := util.Difference(seen, known); len(extra) > 0 {
				issues = append(issues, issue.MustNew(types.SeverityNotice, issue.ExtraAuthorities, issue.Params{
					"authorities": strings.Join(extra, ", "),
				}, extra...))
			}
			return issues, nil
		})
}
