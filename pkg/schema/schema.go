// Package schema defines the Go types for the stanza block document
// and provides order-preserving YAML parsing. A document is a set of
// named blocks; a block is an ordered list of key/value steps; a value
// is a scalar, a nested block, or an action directive.
//
// Access policies attach to directives only: scalar steps and inline
// nested blocks have no place in the YAML shape for metadata and are
// always public. To gate a whole submenu, put it in its own top-level
// block and reach it through a nav directive carrying the policy.
package schema

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/stanza/pkg/access"
)

// Document is the top-level parsed block document. Blocks keep their
// document order. Documents are read-only after parsing.
type Document struct {
	Version string
	Vars    map[string]string
	Blocks  []*Block

	// Base and File name the scope segments this document's blocks
	// live under (base.file.block).
	Base string
	File string
}

// Block is a named, ordered collection of steps.
type Block struct {
	Name  string
	Steps []Step
}

// Step is one key/value entry within a block. The key may carry
// control-flow modifier characters; Value is immutable after parse.
type Step struct {
	Key   string
	Value Value
}

// ValueKind discriminates the three step value shapes.
type ValueKind int

const (
	// ScalarValue is literal text, displayed as-is.
	ScalarValue ValueKind = iota
	// BlockValue is a nested block.
	BlockValue
	// DirectiveValue is an action directive.
	DirectiveValue
)

func (k ValueKind) String() string {
	switch k {
	case ScalarValue:
		return "scalar"
	case BlockValue:
		return "block"
	case DirectiveValue:
		return "directive"
	}
	return "unknown"
}

// Value is a step's payload: exactly one of Scalar, Block or Directive
// is set, per Kind.
type Value struct {
	Kind      ValueKind
	Scalar    string
	Block     *Block
	Directive *Directive
}

// Directive kinds. The set is closed: dispatch matches over these tags
// and rejects anything else at parse time.
const (
	KindText  = "text"  // display the rendered body
	KindInput = "input" // prompt for dialog fields
	KindFunc  = "func"  // call a resolved plugin function
	KindData  = "data"  // run a named statement through the data store
	KindNav   = "nav"   // navigate to another scope
)

// directiveKinds lists every directive kind the engine dispatches.
var directiveKinds = []string{KindText, KindInput, KindFunc, KindData, KindNav}

// Directive is an action step: a kind tag, a target within that kind's
// namespace, templated args, an optional when-guard and an optional
// access policy.
type Directive struct {
	Do     string            `yaml:"do"               json:"do"               jsonschema:"required,enum=text,enum=input,enum=func,enum=data,enum=nav"`
	Target string            `yaml:"target,omitempty" json:"target,omitempty"`
	Body   string            `yaml:"body,omitempty"   json:"body,omitempty"`
	Args   map[string]string `yaml:"args,omitempty"   json:"args,omitempty"`
	When   string            `yaml:"when,omitempty"   json:"when,omitempty"`
	Access *access.Policy    `yaml:"access,omitempty" json:"access,omitempty"`
}

// TxSigil marks a data target's alias as transactional:
// "&orders.insert" opens (or joins) the "orders" transaction.
const TxSigil = '&'

// TxAlias splits a data directive's target into its transactional
// alias and statement name. ok is false when the target carries no
// transaction sigil.
func (d *Directive) TxAlias() (alias, stmt string, ok bool) {
	if d.Do != KindData || d.Target == "" || d.Target[0] != TxSigil {
		return "", "", false
	}
	rest := d.Target[1:]
	i := strings.IndexByte(rest, '.')
	if i <= 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// Statement returns the statement name of a data directive, with any
// transaction alias stripped.
func (d *Directive) Statement() string {
	if _, stmt, ok := d.TxAlias(); ok {
		return stmt
	}
	return d.Target
}

// Lookup resolves a block path such as "root" or "root.settings".
// Nested segments are matched against clean step keys (modifiers
// stripped).
func (doc *Document) Lookup(path string) (*Block, error) {
	segs := strings.Split(path, ".")
	var blk *Block
	for _, b := range doc.Blocks {
		if b.Name == segs[0] {
			blk = b
			break
		}
	}
	if blk == nil {
		return nil, fmt.Errorf("block %q: %w", segs[0], ErrBlockNotFound)
	}
	for _, seg := range segs[1:] {
		next := blk.child(seg)
		if next == nil {
			return nil, fmt.Errorf("block %q has no nested block %q: %w", blk.Name, seg, ErrBlockNotFound)
		}
		blk = next
	}
	return blk, nil
}

// ErrBlockNotFound is returned by Lookup for missing blocks.
var ErrBlockNotFound = fmt.Errorf("block not found")

func (b *Block) child(cleanKey string) *Block {
	for _, s := range b.Steps {
		if s.Value.Kind != BlockValue {
			continue
		}
		if key, _ := ParseKey(s.Key); key == cleanKey {
			return s.Value.Block
		}
	}
	return nil
}

// Step returns the step at cleanKey (modifiers stripped), or nil.
func (b *Block) Step(cleanKey string) *Step {
	for i := range b.Steps {
		if key, _ := ParseKey(b.Steps[i].Key); key == cleanKey {
			return &b.Steps[i]
		}
	}
	return nil
}

// LoadFile reads and parses a block document. Base defaults to the
// parent directory name and File to the file name without extension;
// together with a block name they form a scope string.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	doc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, _ := filepath.Abs(path)
	doc.Base = filepath.Base(filepath.Dir(abs))
	doc.File = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return doc, nil
}

// Load parses a block document from a reader, preserving block and
// step order. Parsing is strict: unknown document fields, duplicate
// keys, and malformed directives are errors.
func Load(r io.Reader) (*Document, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 {
		return nil, fmt.Errorf("decode document: unexpected YAML shape")
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("document root must be a mapping (line %d)", top.Line)
	}

	doc := &Document{Vars: map[string]string{}}
	for i := 0; i < len(top.Content); i += 2 {
		k, v := top.Content[i], top.Content[i+1]
		switch k.Value {
		case "version":
			doc.Version = v.Value
		case "vars":
			if err := v.Decode(&doc.Vars); err != nil {
				return nil, fmt.Errorf("vars (line %d): %w", v.Line, err)
			}
		case "blocks":
			if v.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("blocks must be a mapping (line %d)", v.Line)
			}
			for j := 0; j < len(v.Content); j += 2 {
				name, body := v.Content[j], v.Content[j+1]
				blk, err := parseBlock(name.Value, body)
				if err != nil {
					return nil, err
				}
				doc.Blocks = append(doc.Blocks, blk)
			}
		default:
			return nil, fmt.Errorf("unknown document field %q (line %d)", k.Value, k.Line)
		}
	}
	if len(doc.Blocks) == 0 {
		return nil, fmt.Errorf("document has no blocks")
	}
	return doc, nil
}

// parseBlock turns a YAML mapping node into an ordered Block.
func parseBlock(name string, node *yaml.Node) (*Block, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("block %q must be a mapping (line %d)", name, node.Line)
	}
	blk := &Block{Name: name}
	seen := map[string]bool{}
	for i := 0; i < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if seen[k.Value] {
			return nil, fmt.Errorf("block %q: duplicate key %q (line %d)", name, k.Value, k.Line)
		}
		seen[k.Value] = true

		val, err := parseValue(name, k.Value, v)
		if err != nil {
			return nil, err
		}
		blk.Steps = append(blk.Steps, Step{Key: k.Value, Value: val})
	}
	return blk, nil
}

// parseValue classifies a step's payload node. A scalar is literal
// text; a mapping with a "do" key is a directive; any other mapping is
// a nested block.
func parseValue(blockName, key string, node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return Value{Kind: ScalarValue, Scalar: node.Value}, nil
	case yaml.MappingNode:
		if hasMapKey(node, "do") {
			d, err := parseDirective(node)
			if err != nil {
				return Value{}, fmt.Errorf("block %q step %q: %w", blockName, key, err)
			}
			return Value{Kind: DirectiveValue, Directive: d}, nil
		}
		cleanKey, _ := ParseKey(key)
		nested, err := parseBlock(cleanKey, node)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: BlockValue, Block: nested}, nil
	default:
		return Value{}, fmt.Errorf("block %q step %q: unsupported value (line %d)", blockName, key, node.Line)
	}
}

func parseDirective(node *yaml.Node) (*Directive, error) {
	var d Directive
	dec := yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{node}}
	// Strict decode: unknown directive fields are rejected.
	b, err := yaml.Marshal(&dec)
	if err != nil {
		return nil, err
	}
	ydec := yaml.NewDecoder(strings.NewReader(string(b)))
	ydec.KnownFields(true)
	if err := ydec.Decode(&d); err != nil {
		return nil, fmt.Errorf("directive (line %d): %w", node.Line, err)
	}

	valid := false
	for _, k := range directiveKinds {
		if d.Do == k {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("directive (line %d): unknown kind %q", node.Line, d.Do)
	}
	if (d.Do == KindFunc || d.Do == KindData || d.Do == KindNav) && d.Target == "" {
		return nil, fmt.Errorf("directive (line %d): kind %q requires a target", node.Line, d.Do)
	}
	return &d, nil
}

func hasMapKey(node *yaml.Node, key string) bool {
	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}
