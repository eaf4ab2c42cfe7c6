package notifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
	"github.com/tordoctor/doctor/internal/util"
)

// AnnouncePrefix starts every line of the announce summary.
const AnnouncePrefix = "[consensus-health] "

// DestinationResolver maps the authorities an issue concerns to their
// contacts. suppression.Manager implements it.
type DestinationResolver interface {
	Destinations(i issue.Issue) map[string]*types.Destination
}

// Plan is everything needed to send one cycle's notification.
type Plan struct {
	// Destinations is the merged authority→contact map; nil values mark
	// authorities without contact information.
	Destinations map[string]*types.Destination
	NoContact    []string
	CC           []string
	BCC          []string
	// Labels describe each destination for logging.
	Labels []string
	// Body has one "SEVERITY: message" line per issue.
	Body string
	// Announce is the body with AnnouncePrefix on every line.
	Announce string
}

// Router builds notification plans.
type Router struct {
	renderer *issue.Renderer
	resolver DestinationResolver
}

// NewRouter creates a Router.
func NewRouter(renderer *issue.Renderer, resolver DestinationResolver) *Router {
	return &Router{renderer: renderer, resolver: resolver}
}

// Plan merges the destinations of every issue, in order, and renders the
// bodies. Address lists are sorted and deduplicated.
func (r *Router) Plan(issues []issue.Issue) Plan {
	p := Plan{Destinations: map[string]*types.Destination{}}
	lines := make([]string, 0, len(issues))
	announce := make([]string, 0, len(issues))
	for _, is := range issues {
		for authority, dest := range r.resolver.Destinations(is) {
			p.Destinations[authority] = dest
		}
		line := r.renderer.Line(is)
		lines = append(lines, line)
		announce = append(announce, AnnouncePrefix+line)
	}
	p.Body = strings.Join(lines, "\n")
	p.Announce = strings.Join(announce, "\n")

	for _, authority := range util.SortedKeys(p.Destinations) {
		dest := p.Destinations[authority]
		switch {
		case dest == nil:
			p.NoContact = append(p.NoContact, authority)
			p.Labels = append(p.Labels, authority+" has no contact information")
		case dest.BCC:
			p.BCC = append(p.BCC, dest.Address)
			p.Labels = append(p.Labels, fmt.Sprintf("%s at %s via bcc", authority, dest.Address))
		default:
			p.CC = append(p.CC, dest.Address)
			p.Labels = append(p.Labels, fmt.Sprintf("%s at %s", authority, dest.Address))
		}
	}
	p.CC = sortedUnique(p.CC)
	p.BCC = sortedUnique(p.BCC)
	return p
}

func sortedUnique(s []string) []string {
	out := util.UniqueStrings(s)
	sort.Strings(out)
	return out
}
