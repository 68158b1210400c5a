package automation

import (
	"errors"
	"testing"
	"time"
)

func TestCompileConditionEmpty(t *testing.T) {
	cond, err := CompileCondition("")
	if err != nil {
		t.Fatalf("CompileCondition: %v", err)
	}
	if cond != nil {
		t.Fatal("empty source should yield nil condition")
	}
	ok, err := cond.Evaluate(1, "any", time.Now())
	if err != nil || !ok {
		t.Errorf("nil condition Evaluate = %v, %v; want true, nil", ok, err)
	}
}

func TestCompileConditionInvalid(t *testing.T) {
	tests := []string{
		"hour >=",          // syntax
		"unknown_var == 1", // not in env
		"port + 1",         // not bool
	}
	for _, src := range tests {
		if _, err := CompileCondition(src); !errors.Is(err, ErrInvalidCondition) {
			t.Errorf("CompileCondition(%q) err = %v, want ErrInvalidCondition", src, err)
		}
	}
}

func TestConditionEvaluate(t *testing.T) {
	// Wednesday 2026-10-14 07:30 local time.
	morning := time.Date(2026, 10, 14, 7, 30, 0, 0, time.Local)
	night := time.Date(2026, 10, 14, 23, 5, 0, 0, time.Local)

	tests := []struct {
		name string
		src  string
		port uint32
		at   time.Time
		want bool
	}{
		{"daytime true", "hour >= 6 && hour < 22", 1, morning, true},
		{"daytime false", "hour >= 6 && hour < 22", 1, night, false},
		{"port match", "port == 12", 12, morning, true},
		{"port mismatch", "port == 12", 13, morning, false},
		{"weekday", `weekday == "Wednesday"`, 1, morning, true},
		{"minute", "minute > 0 && minute < 10", 1, night, true},
		{"name", `name startsWith "Signal"`, 1, morning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := CompileCondition(tt.src)
			if err != nil {
				t.Fatalf("CompileCondition: %v", err)
			}
			got, err := cond.Evaluate(tt.port, "Signal Nord", tt.at)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
			if cond.String() != tt.src {
				t.Errorf("String = %q, want %q", cond.String(), tt.src)
			}
		})
	}
}
