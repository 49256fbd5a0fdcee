package notify

import (
	"errors"
	"testing"
)

func TestEscapeAppleScript(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{`OS "100"`, `OS \"100\"`},
		{`path\to\file`, `path\\to\\file`},
		{`"quote" and \backslash`, `\"quote\" and \\backslash`},
		{"", ""},
	}
	for _, tt := range tests {
		got := escapeAppleScript(tt.input)
		if got != tt.want {
			t.Errorf("escapeAppleScript(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSenderFunc(t *testing.T) {
	var gotTitle, gotMsg string
	s := SenderFunc(func(title, message string) error {
		gotTitle, gotMsg = title, message
		return errors.New("nope")
	})
	if err := s.Send("t", "m"); err == nil {
		t.Error("expected error to propagate")
	}
	if gotTitle != "t" || gotMsg != "m" {
		t.Errorf("got %q %q", gotTitle, gotMsg)
	}
}

func TestDesktop_NeverNil(t *testing.T) {
	if Desktop(nil) == nil {
		t.Fatal("Desktop returned nil sender")
	}
}
