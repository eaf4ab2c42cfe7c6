package issue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tordoctor/doctor/internal/types"
)

// Params are the named values substituted into a template's message.
type Params map[string]string

// Issue is a problem found during a cycle. It is immutable once built; use New
// to construct one.
type Issue struct {
	severity types.Severity
	template Template
	params   Params
	to       []string
}

// New validates the template and its parameters and builds an Issue. The to
// list names the authorities the issue concerns; empty means operator-only.
// Duplicate authorities are collapsed.
func New(severity types.Severity, template Template, params Params, to ...string) (Issue, error) {
	s, ok := schemas[template]
	if !ok {
		return Issue{}, fmt.Errorf("unknown issue template %q", template)
	}
	var missing []string
	for _, name := range s.required {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Issue{}, fmt.Errorf("issue %s missing parameters: %s", template, strings.Join(missing, ", "))
	}

	copied := make(Params, len(params))
	for k, v := range params {
		copied[k] = v
	}

	seen := make(map[string]struct{}, len(to))
	var recipients []string
	for _, a := range to {
		if _, dup := seen[a]; dup || a == "" {
			continue
		}
		seen[a] = struct{}{}
		recipients = append(recipients, a)
	}

	return Issue{severity: severity, template: template, params: copied, to: recipients}, nil
}

// MustNew is New for call sites whose parameters are fixed at compile time.
// It panics on a schema violation, which the check engine reports as a failed
// check.
func MustNew(severity types.Severity, template Template, params Params, to ...string) Issue {
	i, err := New(severity, template, params, to...)
	if err != nil {
		panic(err)
	}
	return i
}

// Severity returns the issue's severity.
func (i Issue) Severity() types.Severity { return i.severity }

// Template returns the issue's template.
func (i Issue) Template() Template { return i.template }

// Param returns a single parameter value.
func (i Issue) Param(name string) string { return i.params[name] }

// Params returns a copy of the parameters.
func (i Issue) Params() Params {
	out := make(Params, len(i.params))
	for k, v := range i.params {
		out[k] = v
	}
	return out
}

// To returns the authorities the issue concerns, in construction order.
func (i Issue) To() []string {
	out := make([]string, len(i.to))
	copy(out, i.to)
	return out
}

// String is a compact representation for logs. It does not need the message
// catalogue.
func (i Issue) String() string {
	names := make([]string, 0, len(i.params))
	for k := range i.params {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(i.severity.String())
	b.WriteByte(' ')
	b.WriteString(string(i.template))
	for _, k := range names {
		fmt.Fprintf(&b, " %s=%q", k, i.params[k])
	}
	return b.String()
}
