package sessiontype

import (
	"errors"
	"testing"
	"time"
)

const sample = `
session_types:
  - id: intro
    name: Introductory call
    duration_minutes: 15
    price: 0
  - id: standard
    name: Standard therapy session
    duration_minutes: 50
    price: 9000
    no_show_fee: 4500
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st, err := c.Get("standard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Duration() != 50*time.Minute {
		t.Errorf("expected 50m duration, got %s", st.Duration())
	}
	if !st.ChargesNoShow() {
		t.Error("expected standard session to charge no-show fee")
	}

	intro, _ := c.Get("intro")
	if intro.ChargesNoShow() {
		t.Error("expected intro call not to charge no-show fee")
	}

	if got := len(c.All()); got != 2 {
		t.Errorf("expected 2 session types, got %d", got)
	}
}

func TestGet_Unknown(t *testing.T) {
	c, _ := NewCatalog(SessionType{ID: "a", DurationMinutes: 30})
	if _, err := c.Get("b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		types []SessionType
	}{
		{"missing id", []SessionType{{DurationMinutes: 30}}},
		{"zero duration", []SessionType{{ID: "x"}}},
		{"duplicate", []SessionType{{ID: "x", DurationMinutes: 30}, {ID: "x", DurationMinutes: 45}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCatalog(tt.types...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
