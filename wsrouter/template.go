package wsrouter

import (
	"fmt"
	"strings"
)

// segment is one path segment matcher: either a literal or a named
// parameter that captures a single segment.
type segment struct {
	literal string
	param   string
}

// pathTemplate is a compiled route template. Templates are a slash-separated
// list of literal segments and {name} parameters, for example
// "/parents/{pid}". Compilation happens once at registration; matching walks
// the segment list without allocating beyond the captured parameters.
type pathTemplate struct {
	// template is the original template string.
	template string
	// segments are the compiled per-segment matchers.
	segments []segment
	// shape identifies the pattern with parameter names erased, used to
	// detect colliding registrations such as "/a/{x}" and "/a/{y}".
	shape string
	// params are the parameter names in order of appearance.
	params []string
}

// parseTemplate compiles tpl. Each segment must be fully literal or a single
// {name} parameter; mixed or unbalanced braces are a registration error.
func parseTemplate(tpl string) (*pathTemplate, error) {
	t := &pathTemplate{template: tpl}

	trimmed := strings.Trim(tpl, "/")
	if trimmed == "" {
		return t, nil
	}

	var shape []string
	for _, raw := range strings.Split(trimmed, "/") {
		switch {
		case raw == "":
			return nil, fmt.Errorf("wsrouter: empty segment in %q", tpl)

		case strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}"):
			name := raw[1 : len(raw)-1]
			if name == "" || strings.ContainsAny(name, "{}") {
				return nil, fmt.Errorf("wsrouter: invalid parameter segment %q in %q", raw, tpl)
			}
			t.segments = append(t.segments, segment{param: name})
			t.params = append(t.params, name)
			shape = append(shape, "{}")

		case strings.ContainsAny(raw, "{}"):
			return nil, fmt.Errorf("wsrouter: unbalanced braces in segment %q of %q", raw, tpl)

		default:
			t.segments = append(t.segments, segment{literal: raw})
			shape = append(shape, raw)
		}
	}
	t.shape = strings.Join(shape, "/")

	if err := checkDuplicateParams(t.params, tpl); err != nil {
		return nil, err
	}
	return t, nil
}

// checkDuplicateParams returns an error if any parameter name is repeated
// within one template.
func checkDuplicateParams(params []string, tpl string) error {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if seen[p] {
			return fmt.Errorf("wsrouter: duplicated route parameter %q in %q", p, tpl)
		}
		seen[p] = true
	}
	return nil
}

// specificity is the number of parametric segments. Fewer parameters means a
// more specific template.
func (t *pathTemplate) specificity() int {
	return len(t.params)
}

// matchPrefix attempts to consume the leading segments of segs. On success
// it returns the captured parameters and the unconsumed remainder.
func (t *pathTemplate) matchPrefix(segs []string) (Params, []string, bool) {
	if len(segs) < len(t.segments) {
		return nil, nil, false
	}
	params := make(Params, len(t.params))
	for i, s := range t.segments {
		if s.param != "" {
			params[s.param] = segs[i]
			continue
		}
		if s.literal != segs[i] {
			return nil, nil, false
		}
	}
	return params, segs[len(t.segments):], true
}

// build reconstructs a concrete path from the template and params.
func (t *pathTemplate) build(params Params) (string, error) {
	parts := make([]string, len(t.segments))
	for i, s := range t.segments {
		if s.param == "" {
			parts[i] = s.literal
			continue
		}
		v, ok := params[s.param]
		if !ok {
			return "", fmt.Errorf("%w: %q in %q", ErrMissingParameter, s.param, t.template)
		}
		parts[i] = v
	}
	return "/" + strings.Join(parts, "/"), nil
}

// splitPath splits a target path into its segments. The root path yields nil.
func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
