// Package router turns free-text judge completions into routing
// decisions and picks which judge answers a human utterance.
package router

import (
	"strings"

	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/judgeio"
)

// EmptyMessage stands in for a completion that carried no text at all.
const EmptyMessage = "(no response)"

// Resolver maps loosely written persona names to registered ones.
type Resolver interface {
	Resolve(text string) (string, bool)
}

type field int

const (
	fieldNone field = iota
	fieldRoute
	fieldTarget
	fieldMessage
)

// Parse reads a persona completion written as "route:", "target:" and
// "message:" lines. It never fails: output without a usable route becomes
// a reply to the human carrying the whole text, a handoff whose target
// does not resolve becomes a reply, and a missing message falls back to
// the whole text.
func Parse(raw string, names Resolver) domain.RoutingDecision {
	text := strings.TrimSpace(judgeio.StripFences(raw))
	whole := text
	if whole == "" {
		whole = EmptyMessage
	}

	var (
		route     string
		haveRoute bool
		target    string
		msgLines  []string
		haveMsg   bool
	)
	current := fieldNone
	for _, line := range strings.Split(text, "\n") {
		key, value, isField := splitField(line)
		if !isField {
			if current == fieldMessage {
				msgLines = append(msgLines, strings.TrimRight(line, " \t\r"))
			}
			continue
		}
		current = key
		switch key {
		case fieldRoute:
			if !haveRoute {
				route, haveRoute = value, true
			}
		case fieldTarget:
			if target == "" {
				target = value
			}
		case fieldMessage:
			if !haveMsg {
				msgLines, haveMsg = []string{value}, true
			} else {
				current = fieldNone
			}
		}
	}

	r, ok := parseRoute(route)
	if !haveRoute || !ok {
		return domain.RoutingDecision{Route: domain.RouteReplyToHuman, Message: whole}
	}

	msg := strings.TrimSpace(strings.Join(msgLines, "\n"))
	if msg == "" {
		msg = whole
	}

	decision := domain.RoutingDecision{Route: r, Message: msg}
	if r == domain.RouteHandoffToPeer {
		resolved := ""
		if names != nil && target != "" {
			resolved, ok = names.Resolve(target)
		}
		if !ok || resolved == "" {
			decision.Route = domain.RouteReplyToHuman
		} else {
			decision.Target = resolved
		}
	}
	return decision
}

// splitField recognizes "key: value" lines for the three known keys.
// Keys are case-insensitive and may carry Markdown emphasis.
func splitField(line string) (field, string, bool) {
	k, v, found := strings.Cut(line, ":")
	if !found {
		return fieldNone, "", false
	}
	k = strings.ToLower(strings.Trim(strings.TrimSpace(k), "*_`#- "))
	v = strings.TrimSpace(v)
	switch k {
	case "route":
		return fieldRoute, v, true
	case "target":
		return fieldTarget, v, true
	case "message":
		return fieldMessage, v, true
	}
	return fieldNone, "", false
}

func parseRoute(v string) (domain.Route, bool) {
	v = strings.ToLower(strings.Trim(strings.TrimSpace(v), "*_`.\"'"))
	switch v {
	case "1", "handoff", "hand_off", "peer":
		return domain.RouteHandoffToPeer, true
	case "2", "reply", "human", "user":
		return domain.RouteReplyToHuman, true
	}
	return domain.RouteReplyToHuman, false
}
