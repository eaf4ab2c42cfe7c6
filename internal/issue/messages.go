package issue

// DefaultMessages is the built-in message catalogue. Configuration may
// override individual entries.
func DefaultMessages() map[Template]string {
	return map[Template]string{
		AuthorityUnavailable:           "Unable to retrieve the {fetch_type} from {authority} ({url}): {error}",
		Latency:                        "Downloading the consensus from {authority} took {time_taken}. Median download time is {median_time}: {authority_times}",
		ClockSkew:                      "The system clock of {authority} is {difference} seconds off",
		UnableToReachORPort:            "Unable to reach the ORPort of {authority} ({address}:{port}): {error}",
		LegacyAddressUnavailable:       "Unable to retrieve the server descriptor of {authority} from its old address ({address}): {error}",
		MissingLatestConsensus:         "The consensuses published by the following directory authorities are more than one hour old and therefore not fresh anymore: {authorities}",
		MissingAuthorityDesc:           "{authority} is missing the server descriptor of {peer}",
		ConsensusMethodUnsupported:     "The following directory authorities do not support the consensus method that the consensus uses: {authorities}",
		DifferentRecommendedVersion:    "The following directory authorities recommend other {type} versions than the consensus: {differences}",
		UnknownConsensusParameters:     "The following directory authorities set unknown consensus parameters: {parameters}",
		MismatchConsensusParameters:    "The following directory authorities set conflicting consensus parameters: {parameters}",
		CertificateAboutToExpire:       "The certificate of the following directory authority expires within the next {duration}: {authority}",
		MissingVotes:                   "The consensuses downloaded from the following authorities are missing votes that are contained in consensuses downloaded from other authorities: {authorities}",
		MissingSignature:               "Consensus fetched from {consensus_of} was missing the following authority signatures: {authorities}",
		MissingBandwidthScanners:       "The following directory authorities are not reporting bandwidth scanner results: {authorities}",
		ExtraBandwidthScanners:         "The following directory authorities were not expected to report bandwidth scanner results: {authorities}",
		TooManyUnmeasuredRelays:        "As a bandwidth authority {authority} lacked a measurement for {unmeasured} of {total} relays ({percentage}%)",
		MissingAuthorities:             "The following authorities are missing from the consensus: {authorities}",
		ExtraAuthorities:               "The following authorities were not expected in the consensus: {authorities}",
		FlagCountDiffers:               "{authority} had {vote_count} {flag} flags in its vote but the consensus had {consensus_count}",
		TorOutOfDate:                   "The following authorities are running an out of date version of tor: {authorities}",
		BadExitOutOfSync:               "Authorities disagree about the BadExit flag for {fingerprint} ({counts})",
		BandwidthAuthoritiesOutOfSync:  "Bandwidth authorities have a substantially different number of measured entries: {authorities}",
		CurrentSharedRandomMissing:     "Shared randomness current value is missing from the latest consensus",
		PreviousSharedRandomMissing:    "Shared randomness previous value is missing from the latest consensus",
		SharedRandomCommitmentMismatch: "{authority} reports {their_v3ident} committed {our_value} but its own vote says {their_value}",
		SharedRandomNoReveal:           "{authority} did not provide a shared randomness reveal value in its vote",
		SharedRandomMultipleReveal:     "{authority} provided {count} shared randomness reveal values for itself",
		SharedRandomRevealMissing:      "{authority} is missing the shared randomness reveal of {their_v3ident} ({their_value})",
		SharedRandomRevealDuplicated:   "{authority} lists the shared randomness reveal of {their_v3ident} more than once",
		SharedRandomRevealMismatch:     "{authority} reports {their_v3ident} revealed {our_value} but its own vote says {their_value}",
		CheckFailed:                    "The {check} check failed to run: {error}",
	}
}
