package models

import (
	"github.com/starford/mapforge/internal/apperr"
)

// Validate checks the structural invariants every plan must hold before it
// is handed to the executor: each command owns exactly one non-empty output,
// depends on at least one input unless forced, does not consume its own
// output, and no two commands share an output.
func (p Plan) Validate() error {
	seen := make(map[string]int, len(p.Commands))
	for i, c := range p.Commands {
		if c.Command == "" {
			return apperr.Configf("%s: step %d has an empty command", p.Overlay, i+1)
		}
		if c.Output == "" {
			return apperr.Configf("%s: step %d (%s) declares no output", p.Overlay, i+1, c.Command)
		}
		if len(c.Inputs) == 0 && !c.Force {
			return apperr.Configf("%s: step %d (%s) declares no inputs", p.Overlay, i+1, c.Command)
		}
		for _, in := range c.Inputs {
			if in == c.Output {
				return apperr.Configf("%s: step %d lists its output %q as an input", p.Overlay, i+1, c.Output)
			}
		}
		if prev, ok := seen[c.Output]; ok {
			return apperr.Configf("%s: steps %d and %d both produce %q", p.Overlay, prev, i+1, c.Output)
		}
		seen[c.Output] = i + 1
	}
	return nil
}

// Outputs returns every output declared by the plan.
func (p Plan) Outputs() []string {
	out := make([]string, 0, len(p.Commands))
	for _, c := range p.Commands {
		out = append(out, c.Output)
	}
	return out
}

// WithForce returns a copy of the plan with every command forced.
func (p Plan) WithForce() Plan {
	cmds := make([]PlannedCommand, len(p.Commands))
	for i, c := range p.Commands {
		c.Force = true
		cmds[i] = c
	}
	p.Commands = cmds
	return p
}
