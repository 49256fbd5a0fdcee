package model

import (
	"reflect"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"Setup em andamento", StatusSetupInProgress},
		{" Produção em andamento ", StatusProductionInProgress},
		{"Pausado", StatusPaused},
		{"Setup concluído", StatusSetupDone},
		{"Finalizado", StatusFinished},
		{"Desconhecido", StatusAwaiting},
		{"", StatusAwaiting},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseStatus(tt.in); got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStatusActions(t *testing.T) {
	tests := []struct {
		status Status
		want   []Action
	}{
		{StatusAwaiting, []Action{ActionStartSetup}},
		{StatusSetupInProgress, []Action{ActionEndSetup}},
		{StatusSetupDone, []Action{ActionStartProduction}},
		{StatusProductionInProgress, []Action{ActionPause, ActionStop}},
		{StatusPaused, []Action{ActionResume}},
		{StatusFinished, []Action{}},
		{Status("bogus"), []Action{ActionStartSetup}},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Actions(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Actions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusActions_ReturnsCopy(t *testing.T) {
	acts := StatusProductionInProgress.Actions()
	acts[0] = ActionStartSetup
	if StatusProductionInProgress.Actions()[0] != ActionPause {
		t.Fatal("Actions() leaked the shared table")
	}
}

func TestStatusActivity(t *testing.T) {
	tests := []struct {
		status     Status
		active     bool
		productive bool
	}{
		{StatusAwaiting, false, false},
		{StatusSetupInProgress, true, true},
		{StatusSetupDone, false, false},
		{StatusProductionInProgress, true, true},
		{StatusPaused, true, false},
		{StatusFinished, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
			if got := tt.status.IsProductive(); got != tt.productive {
				t.Errorf("IsProductive() = %v, want %v", got, tt.productive)
			}
		})
	}
}
