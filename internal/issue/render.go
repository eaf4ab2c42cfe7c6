package issue

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Renderer turns issues into human-readable text using a message catalogue of
// "{param}" format strings keyed by template.
type Renderer struct {
	messages map[Template]string
	logger   *zap.Logger
}

// NewRenderer copies the catalogue. Templates absent from it render as an
// empty message.
func NewRenderer(messages map[Template]string, logger *zap.Logger) *Renderer {
	m := make(map[Template]string, len(messages))
	for k, v := range messages {
		m[k] = v
	}
	return &Renderer{messages: m, logger: logger.Named("renderer")}
}

// Message renders the issue's description. Rendering problems are logged and
// produce an empty string rather than an error.
func (r *Renderer) Message(i Issue) string {
	format, ok := r.messages[i.template]
	if !ok {
		r.logger.Error("Missing message template", zap.String("template", string(i.template)))
		return ""
	}
	msg, err := expand(format, i.params)
	if err != nil {
		r.logger.Error("Unable to apply parameters to message template",
			zap.String("template", string(i.template)),
			zap.Any("params", i.params),
			zap.Error(err),
		)
		return ""
	}
	return msg
}

// Line is the one-line form used in notification bodies: "SEVERITY: message".
func (r *Renderer) Line(i Issue) string {
	return fmt.Sprintf("%s: %s", i.severity, r.Message(i))
}

// SuppressionKey derives the deduplication key. Volatile parameters are
// blanked first so that recurrences of the same problem with different
// magnitudes share a key. The key never depends on the clock.
func (r *Renderer) SuppressionKey(i Issue) string {
	s := schemas[i.template]
	blanked := make(Params, len(i.params))
	for k, v := range i.params {
		blanked[k] = v
	}
	for name, blank := range s.volatile {
		blanked[name] = blank
	}

	if format, ok := r.messages[i.template]; ok {
		if msg, err := expand(format, blanked); err == nil && msg != "" {
			return strings.ReplaceAll(msg, " ", "_")
		}
	}
	return fallbackKey(i.template, i.params, s.volatile)
}

// fallbackKey is used when the catalogue cannot render the issue.
func fallbackKey(t Template, params Params, volatile map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		if _, skip := volatile[k]; !skip {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(string(t))
	for idx, k := range names {
		if idx == 0 {
			b.WriteByte(':')
		} else {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return strings.ReplaceAll(b.String(), " ", "_")
}

var errUnbalanced = errors.New("unbalanced brace")

// expand substitutes "{name}" placeholders. "{{" and "}}" are literal braces.
func expand(format string, params Params) (string, error) {
	var b strings.Builder
	b.Grow(len(format))
	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w at offset %d", errUnbalanced, i)
			}
			name := format[i+1 : i+1+end]
			value, ok := params[name]
			if !ok {
				return "", fmt.Errorf("no value for placeholder %q", name)
			}
			b.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w at offset %d", errUnbalanced, i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
