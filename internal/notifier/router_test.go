package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
)

type contactResolver struct {
	contacts *directory.Contacts
}

func (c contactResolver) Destinations(i issue.Issue) map[string]*types.Destination {
	return c.contacts.Destinations(i.To())
}

func newTestRouter() *Router {
	contacts := directory.NewContacts(map[string]string{
		"moria1":   "moria1@example.org",
		"gabelmoo": "gabelmoo@example.org",
		"maatuska": "maatuska@example.org",
	}, []string{"maatuska"})
	renderer := issue.NewRenderer(issue.DefaultMessages(), zap.NewNop())
	return NewRouter(renderer, contactResolver{contacts: contacts})
}

func TestRouter_Plan(t *testing.T) {
	r := newTestRouter()
	issues := []issue.Issue{
		issue.MustNew(types.SeverityWarning, issue.MissingAuthorities, issue.Params{"authorities": "moria1"}, "moria1", "dizum"),
		issue.MustNew(types.SeverityNotice, issue.MissingVotes, issue.Params{"authorities": "gabelmoo"}, "gabelmoo", "maatuska", "moria1"),
		issue.MustNew(types.SeverityError, issue.CurrentSharedRandomMissing, nil),
	}

	p := r.Plan(issues)

	assert.Equal(t, []string{"dizum"}, p.NoContact)
	assert.Equal(t, []string{"gabelmoo@example.org", "moria1@example.org"}, p.CC)
	assert.Equal(t, []string{"maatuska@example.org"}, p.BCC)
	assert.Len(t, p.Destinations, 4)
	assert.Equal(t, []string{
		"dizum has no contact information",
		"gabelmoo at gabelmoo@example.org",
		"maatuska at maatuska@example.org via bcc",
		"moria1 at moria1@example.org",
	}, p.Labels)

	assert.Equal(t,
		"WARNING: The following authorities are missing from the consensus: moria1\n"+
			"NOTICE: The consensuses downloaded from the following authorities are missing votes that are contained in consensuses downloaded from other authorities: gabelmoo\n"+
			"ERROR: "+r.renderer.Message(issues[2]),
		p.Body)

	for i, line := range splitLines(p.Announce) {
		assert.Equal(t, AnnouncePrefix+r.renderer.Line(issues[i]), line)
	}
}

func TestRouter_PlanSharedAddress(t *testing.T) {
	contacts := directory.NewContacts(map[string]string{
		"moria1":   "shared@example.org",
		"gabelmoo": "shared@example.org",
	}, nil)
	r := NewRouter(issue.NewRenderer(issue.DefaultMessages(), zap.NewNop()), contactResolver{contacts: contacts})

	p := r.Plan([]issue.Issue{
		issue.MustNew(types.SeverityNotice, issue.MissingVotes, issue.Params{"authorities": "x"}, "moria1", "gabelmoo"),
	})
	assert.Equal(t, []string{"shared@example.org"}, p.CC)
	assert.Empty(t, p.BCC)
	assert.Empty(t, p.NoContact)
}

func TestRouter_PlanEmpty(t *testing.T) {
	p := newTestRouter().Plan(nil)
	assert.Empty(t, p.Destinations)
	assert.Empty(t, p.Body)
	assert.Empty(t, p.Announce)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
