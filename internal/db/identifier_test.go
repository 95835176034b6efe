package db

import (
	"strings"
	"testing"
)

func TestSafeIdentifier(t *testing.T) {
	valid := []string{"streetlight_lamp", "TimeInstant", "_hidden", "t1"}
	for _, name := range valid {
		if _, err := SafeIdentifier(name); err != nil {
			t.Fatalf("expected %q to be accepted: %v", name, err)
		}
	}

	invalid := []string{"", "1table", "drop table", "a;b", `a"b`, "a.b", "a-b", "año"}
	for _, name := range invalid {
		if _, err := SafeIdentifier(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	quoted, err := QuoteIdentifier("TimeInstant")
	if err != nil {
		t.Fatalf("QuoteIdentifier failed: %v", err)
	}
	if quoted != `"TimeInstant"` {
		t.Fatalf("expected quoted identifier, got %s", quoted)
	}

	// Dotted catalog identifiers are legal inside quotes.
	quoted, err = QuoteIdentifier("environment.station.temp")
	if err != nil {
		t.Fatalf("QuoteIdentifier failed: %v", err)
	}
	if quoted != `"environment.station.temp"` {
		t.Fatalf("expected quoted dotted identifier, got %s", quoted)
	}

	for _, name := range []string{`a"b`, "a b", ".leading", "1x", ""} {
		if _, err := QuoteIdentifier(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestQualifyTable(t *testing.T) {
	qualified, err := QualifyTable("city1", "streetlight_lamp")
	if err != nil {
		t.Fatalf("QualifyTable failed: %v", err)
	}
	if qualified != "city1.streetlight_lamp" {
		t.Fatalf("unexpected qualified name %q", qualified)
	}

	if _, err := QualifyTable("city1; DROP SCHEMA city1", "t"); err == nil || !strings.Contains(err.Error(), "invalid schema") {
		t.Fatalf("expected schema rejection, got %v", err)
	}
	if _, err := QualifyTable("city1", "t; --"); err == nil || !strings.Contains(err.Error(), "invalid table") {
		t.Fatalf("expected table rejection, got %v", err)
	}
}

func TestIsSafeIdentifier(t *testing.T) {
	if !IsSafeIdentifier("streetlight_lamp") {
		t.Fatal("expected plain identifier to pass")
	}
	if IsSafeIdentifier("drop table") || IsSafeIdentifier("") {
		t.Fatal("expected unsafe identifiers to fail")
	}
}

func TestSafeIdentifierList(t *testing.T) {
	cols, err := SafeIdentifierList([]string{"energy", "runtime"})
	if err != nil {
		t.Fatalf("SafeIdentifierList failed: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("unexpected result %v", cols)
	}

	if _, err := SafeIdentifierList([]string{"energy", "bad col"}); err == nil {
		t.Fatal("expected rejection of unsafe member")
	}
}
