// Package workflow holds the ticket state machine as data: the legal
// transition table and the role policy deciding who may drive each edge.
// It has no transport or storage dependencies so the table is testable in
// isolation.
package workflow

import "github.com/bridgedesk/escalation-service/internal/domain"

// Action names a workflow operation on a ticket.
type Action string

const (
	ActionResolve Action = "resolve"
	ActionReopen  Action = "reopen"
	ActionClose   Action = "close"
)

// edge describes one legal transition.
type edge struct {
	from domain.TicketStatus
	to   domain.TicketStatus
	// sameTeam is true when the action belongs to the creator's own team,
	// false when it belongs to the counterpart team.
	sameTeam bool
}

var transitions = map[Action][]edge{
	ActionResolve: {
		{from: domain.TicketStatusOpen, to: domain.TicketStatusProcessed, sameTeam: false},
		{from: domain.TicketStatusReopened, to: domain.TicketStatusProcessed, sameTeam: false},
	},
	ActionReopen: {
		{from: domain.TicketStatusProcessed, to: domain.TicketStatusReopened, sameTeam: true},
	},
	ActionClose: {
		{from: domain.TicketStatusProcessed, to: domain.TicketStatusClosed, sameTeam: true},
	},
}

// Target returns the resulting status for action from the given status.
// ok is false when the state table has no edge for that pair, regardless
// of who is asking.
func Target(action Action, current domain.TicketStatus) (domain.TicketStatus, bool) {
	for _, e := range transitions[action] {
		if e.from == current {
			return e.to, true
		}
	}
	return "", false
}

// CanPerform reports whether an actor may drive the given action on a ticket
// in its current status. Admin bypasses the role check but is still bound to
// the state table; forced transitions are a separate escape hatch.
func CanPerform(actorRole domain.Role, actorIsAdmin bool, creatorRole domain.Role, current domain.TicketStatus, action Action) bool {
	for _, e := range transitions[action] {
		if e.from != current {
			continue
		}
		if actorIsAdmin {
			return true
		}
		if !actorRole.IsTeam() {
			return false
		}
		if e.sameTeam {
			return actorRole == creatorRole
		}
		return actorRole != creatorRole
	}
	return false
}
