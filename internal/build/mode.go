// Package build compiles asset modules and schedules their rebuilds.
//
// A StylesheetCompiler runs a fixed list of stages chosen by Mode. A
// ScriptCompiler hands entries to esbuild. Both are driven by a Scheduler
// that gives every compilation a Task handle, keeps at most one build per
// module in flight and reports results to registered callbacks.
package build

import (
	"fmt"
	"strings"
)

// Mode selects the stage list and output style of every compiler.
type Mode int

const (
	Production Mode = iota
	Development
)

func (m Mode) String() string {
	if m == Development {
		return "development"
	}

	return "production"
}

// ParseMode maps the configured mode name to a Mode. Empty means production.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "production", "prod":
		return Production, nil
	case "development", "dev":
		return Development, nil
	default:
		return Production, fmt.Errorf("unknown build mode %q", s)
	}
}
