// Package dispatch runs planned commands that name an in-process capability
// instead of an external program. Commands use call syntax,
// name(arg, ...), and every capability declares a closed argument schema;
// arguments are parsed as literals, never evaluated.
package dispatch

import (
	"context"
	"fmt"
	"sort"
)

// Func is the implementation of a capability. args already match the schema.
type Func func(ctx context.Context, args []Arg) error

// Capability is a named in-process function with its argument schema.
type Capability struct {
	Name   string
	Params []ArgKind
	Fn     Func
}

// Call is a command string bound to its capability and parsed arguments.
type Call struct {
	Capability *Capability
	Args       []Arg
}

// Invoke runs the call.
func (c *Call) Invoke(ctx context.Context) error {
	return c.Capability.Fn(ctx, c.Args)
}

// Registry maps capability names to implementations. It is built once at
// start-up and handed to the executor.
type Registry struct {
	caps map[string]*Capability
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]*Capability)}
}

// Register adds a capability. Names must be identifiers and unique.
func (r *Registry) Register(name string, params []ArgKind, fn Func) error {
	if !isIdent(name) {
		return fmt.Errorf("dispatch: invalid capability name %q", name)
	}
	if fn == nil {
		return fmt.Errorf("dispatch: capability %s has no implementation", name)
	}
	if _, ok := r.caps[name]; ok {
		return fmt.Errorf("dispatch: capability %s already registered", name)
	}
	r.caps[name] = &Capability{Name: name, Params: append([]ArgKind(nil), params...), Fn: fn}
	return nil
}

// MustRegister is Register for start-up wiring; it panics on error.
func (r *Registry) MustRegister(name string, params []ArgKind, fn Func) {
	if err := r.Register(name, params, fn); err != nil {
		panic(err)
	}
}

// Names returns the registered capability names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for n := range r.caps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Match reports whether command invokes a registered capability. ok is
// false for anything that should go to the subprocess runner. When ok is
// true a non-nil error means the arguments do not fit the schema.
func (r *Registry) Match(command string) (call *Call, ok bool, err error) {
	name, rawArgs, isCall := splitCall(command)
	if !isCall {
		return nil, false, nil
	}
	capability, found := r.caps[name]
	if !found {
		return nil, false, nil
	}
	toks, err := parseArgs(rawArgs)
	if err != nil {
		return nil, true, fmt.Errorf("dispatch: %s: %w", name, err)
	}
	args, err := bind(capability, toks)
	if err != nil {
		return nil, true, err
	}
	return &Call{Capability: capability, Args: args}, true, nil
}

func bind(c *Capability, toks []token) ([]Arg, error) {
	if len(toks) != len(c.Params) {
		return nil, fmt.Errorf("dispatch: %s takes %d argument(s), got %d", c.Name, len(c.Params), len(toks))
	}
	args := make([]Arg, len(toks))
	for i, kind := range c.Params {
		tok := toks[i]
		switch kind {
		case ArgPath, ArgString:
			if tok.kind != tokQuoted && tok.kind != tokBare && tok.kind != tokNumber {
				return nil, argError(c, i, kind, tok)
			}
			args[i] = Arg{Kind: kind, Text: tok.text}
		case ArgNumber:
			if tok.kind != tokNumber {
				return nil, argError(c, i, kind, tok)
			}
			args[i] = Number(tok.number)
		case ArgParams:
			if tok.kind != tokParams {
				return nil, argError(c, i, kind, tok)
			}
			args[i] = Params(tok.params)
		default:
			return nil, fmt.Errorf("dispatch: %s: unsupported schema kind %v", c.Name, kind)
		}
	}
	return args, nil
}

func argError(c *Capability, i int, want ArgKind, tok token) error {
	return fmt.Errorf("dispatch: %s: argument %d must be a %s, got %q", c.Name, i+1, want, tok.text)
}
