// Package overlay provides read-only, dotted-key access to the pipeline file
// that declares regions, tool flags and the overlays to build.
//
// The file is kept as a yaml.Node tree rather than decoded into structs: the
// planner reads only the keys its command kinds need, and document order of
// flag sections is significant when they are joined into command lines.
package overlay

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/mapforge/internal/apperr"
	pkgconfig "github.com/starford/mapforge/pkg/config"
)

// CommandKey names the per-overlay key holding the command kind.
const CommandKey = "COMMAND"

// Config is a parsed pipeline file.
type Config struct {
	root *yaml.Node
}

// Load reads and parses a pipeline file. ${VAR} references are expanded.
func Load(path string) (*Config, error) {
	var doc yaml.Node
	if err := pkgconfig.Load(path, &doc); err != nil {
		return nil, apperr.Configf("pipeline: %v", err)
	}
	return fromDocument(&doc)
}

// Parse parses pipeline YAML from memory.
func Parse(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := pkgconfig.Decode(data, &doc); err != nil {
		return nil, apperr.Configf("pipeline: %v", err)
	}
	return fromDocument(&doc)
}

func fromDocument(doc *yaml.Node) (*Config, error) {
	root := doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, apperr.Configf("pipeline: empty document")
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, apperr.Configf("pipeline: top level must be a mapping")
	}
	return &Config{root: root}, nil
}

// Lookup walks a dotted key ("REGIONS.alps.FILES"). Exact key matches win;
// otherwise a case-insensitive match is accepted.
func (c *Config) Lookup(key string) (*yaml.Node, bool) {
	node := c.root
	for _, part := range strings.Split(key, ".") {
		node = resolve(node)
		if node == nil || node.Kind != yaml.MappingNode {
			return nil, false
		}
		next := child(node, part)
		if next == nil {
			return nil, false
		}
		node = next
	}
	node = resolve(node)
	if node == nil || isNull(node) {
		return nil, false
	}
	return node, true
}

// Has reports whether key is present and non-null.
func (c *Config) Has(key string) bool {
	_, ok := c.Lookup(key)
	return ok
}

// String returns the scalar at key, or def when it is absent.
func (c *Config) String(key, def string) string {
	node, ok := c.Lookup(key)
	if !ok || node.Kind != yaml.ScalarNode {
		return def
	}
	return node.Value
}

// Require returns the scalar at key or a configuration error.
func (c *Config) Require(key string) (string, error) {
	node, ok := c.Lookup(key)
	if !ok {
		return "", apperr.Configf("missing key %s", key)
	}
	if node.Kind != yaml.ScalarNode {
		return "", apperr.Configf("key %s must be a scalar", key)
	}
	if strings.TrimSpace(node.Value) == "" {
		return "", apperr.Configf("key %s is empty", key)
	}
	return node.Value, nil
}

// Flags joins everything under key into a single space-separated string in
// document order. Scalars are used as-is, sequences and mappings contribute
// their (recursively flattened) values; mapping keys only label entries.
func (c *Config) Flags(key string) string {
	node, ok := c.Lookup(key)
	if !ok {
		return ""
	}
	var parts []string
	collect(node, &parts)
	return strings.Join(parts, " ")
}

func collect(node *yaml.Node, parts *[]string) {
	node = resolve(node)
	if node == nil || isNull(node) {
		return
	}
	switch node.Kind {
	case yaml.ScalarNode:
		if v := strings.TrimSpace(node.Value); v != "" {
			*parts = append(*parts, v)
		}
	case yaml.SequenceNode:
		for _, n := range node.Content {
			collect(n, parts)
		}
	case yaml.MappingNode:
		for i := 1; i < len(node.Content); i += 2 {
			collect(node.Content[i], parts)
		}
	}
}

// List returns the entries at key. A YAML sequence is used directly; a
// scalar is treated as a delimited list ("[a.tif, 'b.tif']"): surrounding
// brackets are stripped, commas and whitespace separate items, and quote
// characters around each item are removed.
func (c *Config) List(key string) ([]string, error) {
	node, ok := c.Lookup(key)
	if !ok {
		return nil, apperr.Configf("missing key %s", key)
	}
	switch node.Kind {
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, n := range node.Content {
			n = resolve(n)
			if n == nil || n.Kind != yaml.ScalarNode {
				return nil, apperr.Configf("key %s: list entries must be scalars", key)
			}
			if v := strings.TrimSpace(n.Value); v != "" {
				out = append(out, v)
			}
		}
		return out, nil
	case yaml.ScalarNode:
		return SplitList(node.Value), nil
	default:
		return nil, apperr.Configf("key %s: unexpected %s, want list or string", key, kindName(node.Kind))
	}
}

// SplitList normalises the delimited string form of a file list.
func SplitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.Trim(f, `"'`); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Param is one entry of a parameter block.
type Param struct {
	Key   string
	Value string
}

// Params returns the flat parameter block at key in document order. The
// block may be a YAML mapping or a scalar holding a flow mapping such as
// "{'saturation': 0.8}". An absent key yields an empty block.
func (c *Config) Params(key string) ([]Param, error) {
	node, ok := c.Lookup(key)
	if !ok {
		return nil, nil
	}
	if node.Kind == yaml.ScalarNode {
		var inner yaml.Node
		if err := yaml.Unmarshal([]byte(node.Value), &inner); err != nil {
			return nil, apperr.Configf("key %s: %v", key, err)
		}
		if len(inner.Content) == 0 {
			return nil, nil
		}
		node = resolve(inner.Content[0])
	}
	if node.Kind != yaml.MappingNode {
		return nil, apperr.Configf("key %s: parameters must be a mapping", key)
	}
	out := make([]Param, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		v := resolve(node.Content[i+1])
		if v == nil || v.Kind != yaml.ScalarNode {
			return nil, apperr.Configf("key %s.%s: parameter values must be scalars", key, node.Content[i].Value)
		}
		out = append(out, Param{Key: node.Content[i].Value, Value: v.Value})
	}
	return out, nil
}

// Overlays returns the ids of all top-level sections declaring a COMMAND,
// in document order.
func (c *Config) Overlays() []string {
	var ids []string
	for i := 0; i+1 < len(c.root.Content); i += 2 {
		v := resolve(c.root.Content[i+1])
		if v != nil && v.Kind == yaml.MappingNode && child(v, CommandKey) != nil {
			ids = append(ids, c.root.Content[i].Value)
		}
	}
	return ids
}

// BuildOrder returns GENERAL.OVERLAYS when present, otherwise Overlays().
func (c *Config) BuildOrder() ([]string, error) {
	if c.Has("GENERAL.OVERLAYS") {
		return c.List("GENERAL.OVERLAYS")
	}
	return c.Overlays(), nil
}

// Kind returns the command kind declared by an overlay.
func (c *Config) Kind(overlayID string) (string, error) {
	if !c.Has(overlayID) {
		return "", apperr.Configf("unknown overlay %q", overlayID)
	}
	kind, err := c.Require(overlayID + "." + CommandKey)
	if err != nil {
		return "", fmt.Errorf("overlay %s: %w", overlayID, err)
	}
	return kind, nil
}

func child(m *yaml.Node, key string) *yaml.Node {
	var folded *yaml.Node
	for i := 0; i+1 < len(m.Content); i += 2 {
		k := m.Content[i].Value
		if k == key {
			return m.Content[i+1]
		}
		if folded == nil && strings.EqualFold(k, key) {
			folded = m.Content[i+1]
		}
	}
	return folded
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	default:
		return "node"
	}
}
