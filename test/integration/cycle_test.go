//go:build integration
// +build integration

package integration

import (
	"strings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/notifier"
	"github.com/tordoctor/doctor/internal/suppression"
	"github.com/tordoctor/doctor/internal/types"
)

func (s *CycleSuite) TestRunOnce_ReportsUnreachableAuthority() {
	report, err := s.runner.RunOnce(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), notifier.OutcomeNotified, report.Outcome)

	var unavailable []string
	for _, is := range report.Issues {
		if is.Template() == issue.AuthorityUnavailable {
			assert.Equal(s.T(), "gabelmoo", is.Param("authority"))
			unavailable = append(unavailable, is.Param("fetch_type"))
		}
	}
	assert.Equal(s.T(), []string{"consensus", "vote"}, unavailable)

	envelopes := s.receiver.received()
	require.Len(s.T(), envelopes, 2)

	detailed := envelopes[0].Data
	assert.Equal(s.T(), "Consensus issues", detailed.Subject)
	assert.Equal(s.T(), types.SeverityError.String(), detailed.Severity)
	assert.Equal(s.T(), []string{"ops@example.org"}, detailed.To)
	assert.Equal(s.T(), []string{"gabelmoo@example.org"}, detailed.CC)
	assert.Contains(s.T(), detailed.Body, "ERROR: Unable to retrieve the consensus from gabelmoo")

	announce := envelopes[1].Data
	assert.Equal(s.T(), "Announce or", announce.Subject)
	assert.Equal(s.T(), []string{"tor-misc@commit.noreply.org"}, announce.To)
	for _, line := range strings.Split(strings.TrimSpace(announce.Body), "\n") {
		assert.True(s.T(), strings.HasPrefix(line, notifier.AnnouncePrefix), line)
	}
}

func (s *CycleSuite) TestRunOnce_ErrorsAreNeverSuppressed() {
	_, err := s.runner.RunOnce(s.ctx)
	require.NoError(s.T(), err)

	report, err := s.runner.RunOnce(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), notifier.OutcomeNotified, report.Outcome)
	for _, is := range report.Suppressed {
		assert.NotEqual(s.T(), types.SeverityError, is.Severity(), is.String())
	}
	assert.Len(s.T(), s.receiver.received(), 4)
}

func (s *CycleSuite) TestRunOnce_RecordsSurviveReopen() {
	report, err := s.runner.RunOnce(s.ctx)
	require.NoError(s.T(), err)

	for _, is := range report.Issues {
		if is.Severity() == types.SeverityError {
			assert.False(s.T(), s.manager.ShouldSuppress(is), is.String())
		}
	}
	keys := s.store.Keys()

	require.NoError(s.T(), s.store.Close())
	reopened, err := suppression.OpenPebbleStore(s.storeDir, s.logger)
	require.NoError(s.T(), err)
	s.store = reopened

	assert.Equal(s.T(), keys, reopened.Keys())
}
