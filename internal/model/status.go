package model

import "strings"

// Status is the production status of a shop order as reported by the server.
// Values are the wire strings sent in status_atual.
type Status string

const (
	StatusAwaiting             Status = "Aguardando"
	StatusSetupInProgress      Status = "Setup em andamento"
	StatusSetupDone            Status = "Setup concluído"
	StatusProductionInProgress Status = "Produção em andamento"
	StatusPaused               Status = "Pausado"
	StatusFinished             Status = "Finalizado"
)

var knownStatuses = map[Status]bool{
	StatusAwaiting:             true,
	StatusSetupInProgress:      true,
	StatusSetupDone:            true,
	StatusProductionInProgress: true,
	StatusPaused:               true,
	StatusFinished:             true,
}

// ParseStatus maps a wire string to a Status. Unknown or empty values
// (including the server's "Desconhecido") become StatusAwaiting.
func ParseStatus(s string) Status {
	st := Status(strings.TrimSpace(s))
	if knownStatuses[st] {
		return st
	}
	return StatusAwaiting
}

// IsActive reports whether the status shows a timer and an activity badge.
// Paused counts as active for display.
func (s Status) IsActive() bool {
	switch s {
	case StatusSetupInProgress, StatusProductionInProgress, StatusPaused:
		return true
	}
	return false
}

// IsProductive reports whether elapsed time in this status is productive time.
// Paused is active but not productive.
func (s Status) IsProductive() bool {
	return s == StatusSetupInProgress || s == StatusProductionInProgress
}

// Rank orders statuses for display: production first, then setup, paused,
// awaiting, everything else last.
func (s Status) Rank() int {
	switch s {
	case StatusProductionInProgress:
		return 1
	case StatusSetupInProgress:
		return 2
	case StatusPaused:
		return 3
	case StatusAwaiting:
		return 4
	}
	return 5
}

// Action is an operator action button shown on a card.
type Action string

const (
	ActionStartSetup      Action = "inicio_setup"
	ActionEndSetup        Action = "fim_setup"
	ActionStartProduction Action = "inicio_producao"
	ActionPause           Action = "pausa"
	ActionStop            Action = "fim_producao"
	ActionResume          Action = "retomar"
)

var actionsByStatus = map[Status][]Action{
	StatusAwaiting:             {ActionStartSetup},
	StatusSetupInProgress:      {ActionEndSetup},
	StatusSetupDone:            {ActionStartProduction},
	StatusProductionInProgress: {ActionPause, ActionStop},
	StatusPaused:               {ActionResume},
	StatusFinished:             {},
}

// Actions returns the buttons visible for a status. The slice is a copy.
func (s Status) Actions() []Action {
	acts, ok := actionsByStatus[s]
	if !ok {
		acts = actionsByStatus[StatusAwaiting]
	}
	out := make([]Action, len(acts))
	copy(out, acts)
	return out
}

// RestrictedActions are the actions only the operator who owns the running
// apontamento may perform.
var RestrictedActions = map[Action]bool{
	ActionEndSetup: true,
	ActionPause:    true,
	ActionStop:     true,
}
