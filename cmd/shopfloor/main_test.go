package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/msageha/shopfloor/internal/events"
	"github.com/msageha/shopfloor/internal/qpt"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "shopfloor "+version) {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestMissingStateDir(t *testing.T) {
	_, err := execute(t, "-w", t.TempDir(), "cache", "show")
	if !errors.Is(err, errNoStateDir) {
		t.Errorf("expected errNoStateDir, got %v", err)
	}
}

func TestSetupRecordAndShowCache(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "setup", dir)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !strings.Contains(out, "Initialized") {
		t.Errorf("setup output: %q", out)
	}

	out, err = execute(t, "-w", dir, "record", "100", "12", "--task-id", "7", "--task-name", "Corte")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if strings.TrimSpace(out) != "OS 100: 12" {
		t.Errorf("record output: %q", out)
	}

	out, err = execute(t, "-w", dir, "cache", "show", "--json")
	if err != nil {
		t.Fatalf("cache show: %v", err)
	}
	var byOrder map[string][]qpt.Item
	if err := json.Unmarshal([]byte(out), &byOrder); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	items := byOrder["100"]
	if len(items) != 1 || items[0].Task != "Corte" || items[0].Qty != 12 {
		t.Errorf("cached items: got %+v", items)
	}
}

func TestParseOrderID(t *testing.T) {
	if id, err := parseOrderID("42"); err != nil || id != 42 {
		t.Errorf("parseOrderID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"0", "-3", "abc", ""} {
		if _, err := parseOrderID(bad); err == nil {
			t.Errorf("parseOrderID(%q) should fail", bad)
		}
	}
}

func TestPrintCache_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := printCache(&buf, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Nenhuma quantidade") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestPrintJournal_FiltersAndLimits(t *testing.T) {
	ts := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	entries := []events.JournalEntry{
		{Timestamp: ts, EventType: events.EventQuantity, OrderID: 1, Origin: "aaaaaaaa-1111"},
		{Timestamp: ts, EventType: events.EventStop, OrderID: 2},
		{Timestamp: ts, EventType: events.EventQuantity, OrderID: 1, Details: map[string]any{"qty": 5}},
		{Timestamp: ts, EventType: events.EventQPTUpdate, OrderID: 1},
	}

	var buf bytes.Buffer
	if err := printJournal(&buf, entries, 1, 2); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `{"qty":5}`) {
		t.Errorf("first line: %q", lines[0])
	}
	if !strings.Contains(lines[1], string(events.EventQPTUpdate)) {
		t.Errorf("second line: %q", lines[1])
	}
	if len(entries) != 4 {
		t.Error("printJournal must not modify its input")
	}
}

func TestShortOrigin(t *testing.T) {
	tests := map[string]string{
		"":                 "-",
		"abc":              "abc",
		"0123456789abcdef": "01234567",
	}
	for in, want := range tests {
		if got := shortOrigin(in); got != want {
			t.Errorf("shortOrigin(%q) = %q, want %q", in, got, want)
		}
	}
}
