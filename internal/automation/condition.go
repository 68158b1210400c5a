package automation

import (
	"fmt"
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// Condition is a compiled trigger condition.
//
// Expressions see these variables:
//
//	port     int     feedback port that fired
//	name     string  trigger name
//	hour     int     local hour 0..23
//	minute   int     local minute 0..59
//	weekday  string  "Monday" .. "Sunday"
//
// Example: `hour >= 6 && hour < 22 && weekday != "Sunday"`.
type Condition struct {
	source  string
	program *vm.Program
}

// conditionEnv returns the variable set used for evaluation.
func conditionEnv(port uint32, name string, now time.Time) map[string]any {
	return map[string]any{
		"port":    int(port),
		"name":    name,
		"hour":    now.Hour(),
		"minute":  now.Minute(),
		"weekday": now.Weekday().String(),
	}
}

// CompileCondition compiles source. An empty source yields a nil Condition
// that always passes.
func CompileCondition(source string) (*Condition, error) {
	if source == "" {
		return nil, nil //nolint:nilnil // no condition configured
	}
	program, err := expr.Compile(source, expr.Env(conditionEnv(0, "", time.Time{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidCondition, source, err)
	}
	return &Condition{source: source, program: program}, nil
}

// Evaluate reports whether the trigger should run. A nil Condition passes.
func (c *Condition) Evaluate(port uint32, name string, now time.Time) (bool, error) {
	if c == nil {
		return true, nil
	}
	out, err := expr.Run(c.program, conditionEnv(port, name, now))
	if err != nil {
		return false, fmt.Errorf("evaluating condition %q: %w", c.source, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("condition %q returned %T, want bool", c.source, out)
	}
	return ok, nil
}

// String returns the expression source.
func (c *Condition) String() string {
	if c == nil {
		return ""
	}
	return c.source
}
