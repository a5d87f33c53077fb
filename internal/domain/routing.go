package domain

// Route says who a judge turn is addressed to.
type Route int

const (
	// RouteReplyToHuman ends the judge turn and waits for the human.
	RouteReplyToHuman Route = iota
	// RouteHandoffToPeer passes the turn to another persona.
	RouteHandoffToPeer
)

// String returns the route name used in logs and metrics labels.
func (r Route) String() string {
	switch r {
	case RouteHandoffToPeer:
		return "handoff"
	default:
		return "reply"
	}
}

// RoutingDecision is the parsed form of one persona turn. Target is set
// only when Route is RouteHandoffToPeer and names a registered persona.
type RoutingDecision struct {
	Route   Route
	Target  string
	Message string
}

// IsHandoff reports whether the decision passes the turn to a peer.
func (d RoutingDecision) IsHandoff() bool {
	return d.Route == RouteHandoffToPeer && d.Target != ""
}
