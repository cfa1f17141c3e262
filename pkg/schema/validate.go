package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError is a single validation finding with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile runs the full validation pipeline on a document file.
// Phase 1: structural (strict ordered YAML decode)
// Phase 2: semantic (JSON Schema validation)
// Phase 3: domain (modifier and directive rules)
func ValidateFile(path string) (*Document, []*ValidationError) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	var all []*ValidationError
	all = append(all, validateSemantic(doc)...)
	all = append(all, ValidateDomain(doc)...)
	if len(all) > 0 {
		return doc, all
	}
	return doc, nil
}

// validateSemantic checks the document against the generated JSON
// Schema using santhosh-tekuri/jsonschema.
func validateSemantic(doc *Document) []*ValidationError {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("generate schema: %v", err),
			Severity: "error",
		}}
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("unmarshal schema: %v", err),
			Severity: "error",
		}}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("document.json", schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("add schema resource: %v", err),
			Severity: "error",
		}}
	}
	compiled, err := c.Compile("document.json")
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("compile schema: %v", err),
			Severity: "error",
		}}
	}

	data, err := json.Marshal(doc.generic())
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("marshal for validation: %v", err),
			Severity: "error",
		}}
	}
	var inst interface{}
	if err := json.Unmarshal(data, &inst); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("reload for validation: %v", err),
			Severity: "error",
		}}
	}

	if err := compiled.Validate(inst); err != nil {
		var out []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenCauses(ve) {
				out = append(out, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			out = append(out, &ValidationError{
				Phase:    "semantic",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return out
	}
	return nil
}

func flattenCauses(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var out []*sjsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, flattenCauses(c)...)
	}
	return out
}

// generic rebuilds the document as plain maps for schema validation.
// Key order is irrelevant here.
func (doc *Document) generic() map[string]any {
	blocks := map[string]any{}
	for _, b := range doc.Blocks {
		blocks[b.Name] = b.generic()
	}
	out := map[string]any{"blocks": blocks}
	if doc.Version != "" {
		out["version"] = doc.Version
	}
	if len(doc.Vars) > 0 {
		vars := map[string]any{}
		for k, v := range doc.Vars {
			vars[k] = v
		}
		out["vars"] = vars
	}
	return out
}

func (b *Block) generic() map[string]any {
	out := map[string]any{}
	for _, s := range b.Steps {
		switch s.Value.Kind {
		case ScalarValue:
			out[s.Key] = s.Value.Scalar
		case BlockValue:
			out[s.Key] = s.Value.Block.generic()
		case DirectiveValue:
			data, _ := json.Marshal(s.Value.Directive)
			var m map[string]any
			_ = json.Unmarshal(data, &m)
			out[s.Key] = m
		}
	}
	return out
}

// ValidateDomain applies the modifier and directive rules that the
// JSON Schema cannot express.
func ValidateDomain(doc *Document) []*ValidationError {
	var errs []*ValidationError
	for _, b := range doc.Blocks {
		errs = append(errs, validateBlock("blocks/"+b.Name, b)...)
	}
	return errs
}

func validateBlock(path string, b *Block) []*ValidationError {
	var errs []*ValidationError
	for _, s := range b.Steps {
		stepPath := path + "/" + s.Key
		_, mods := ParseKey(s.Key)

		if mods.BounceBack && mods.Required {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     stepPath,
				Message:  "bounce-back (^) combined with required (!) is not supported",
				Severity: "error",
			})
		}
		if mods.Menu && s.Value.Kind != BlockValue {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     stepPath,
				Message:  fmt.Sprintf("menu modifier (*) needs a nested block, got %s", s.Value.Kind),
				Severity: "error",
			})
		}
		if mods.Anchor && !mods.Menu && s.Value.Kind != BlockValue {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     stepPath,
				Message:  "anchor modifier (~) has no effect outside a menu",
				Severity: "warning",
			})
		}

		switch s.Value.Kind {
		case DirectiveValue:
			d := s.Value.Directive
			if d.Do == KindData && strings.HasPrefix(d.Target, string(TxSigil)) {
				if _, _, ok := d.TxAlias(); !ok {
					errs = append(errs, &ValidationError{
						Phase:    "domain",
						Path:     stepPath,
						Message:  fmt.Sprintf("malformed transactional target %q (want &alias.statement)", d.Target),
						Severity: "error",
					})
				}
			}
		case BlockValue:
			errs = append(errs, validateBlock(stepPath, s.Value.Block)...)
		}
	}
	return errs
}
