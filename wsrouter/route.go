package wsrouter

// Route binds a compiled path template to a resource factory. Routes are
// registered on a Router (absolute paths) or on a resource via AddSubroute
// (paths relative to the parent's mount).
type Route struct {
	tpl      *pathTemplate
	factory  Factory
	name     string
	statics  Context
	envelope *Envelope
}

// Name returns the route's registered name, if any.
func (r *Route) Name() string {
	return r.name
}

// Template returns the route's original path template.
func (r *Route) Template() string {
	return r.tpl.template
}

// RouteOption configures a route at registration time.
type RouteOption func(*Route)

// WithName names the route for URL reconstruction via URLFor. Names must be
// unique within one router.
func WithName(name string) RouteOption {
	return func(r *Route) {
		r.name = name
	}
}

// WithStatics attaches static construction arguments, merged into the
// dependency context handed to the route's factory. This lets one factory
// be configured differently across multiple routes.
func WithStatics(statics Context) RouteOption {
	return func(r *Route) {
		r.statics = statics
	}
}

// WithEnvelope overrides the router's message envelope for connections
// resolved through this route.
func WithEnvelope(env Envelope) RouteOption {
	return func(r *Route) {
		r.envelope = &env
	}
}

// matchRoutes resolves segs against routes by prefix. Among matching
// candidates the one consuming the most segments wins, so an exact route is
// never shadowed by a shorter prefix; equal-length candidates are ranked by
// fewest parametric segments, and remaining ties break by registration
// order. Matching is deterministic and allocation-light: only the winning
// candidate's params survive.
func matchRoutes(routes []*Route, segs []string) (*Route, Params, []string, bool) {
	var (
		best       *Route
		bestParams Params
		bestRest   []string
	)
	for _, route := range routes {
		params, rest, ok := route.tpl.matchPrefix(segs)
		if !ok {
			continue
		}
		if best == nil || beats(route.tpl, best.tpl) {
			best, bestParams, bestRest = route, params, rest
		}
	}
	if best == nil {
		return nil, nil, nil, false
	}
	return best, bestParams, bestRest, true
}

// beats reports whether candidate outranks the current best: longer first,
// then fewer parameters.
func beats(candidate, best *pathTemplate) bool {
	if len(candidate.segments) != len(best.segments) {
		return len(candidate.segments) > len(best.segments)
	}
	return candidate.specificity() < best.specificity()
}
