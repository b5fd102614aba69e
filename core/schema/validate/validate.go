package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"
	"github.com/kaptinlin/jsonschema"
)

const (
	genericSchemaMessage   = "root is invalid: error_type=schema"
	genericEncodingMessage = "root is invalid: error_type=encoding"
	maxRefDepth            = 64
)

// Schema is one compiled structural rule set. It is immutable after Compile and
// safe for concurrent use.
type Schema struct {
	compiled *jsonschema.Schema
	root     any
	patterns map[string]*regexp.Regexp
}

// Compile checks a schema document with the JSON Schema compiler and keeps an
// ordered copy of it so violations can be reported in definition order.
func Compile(data []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	compiled, err := compiler.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var decoded any
	if err := yaml.UnmarshalWithOptions(data, &decoded, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	root := toNode(decoded)
	if _, ok := root.(*object); !ok {
		if _, isBool := root.(bool); !isBool {
			return nil, fmt.Errorf("decode schema: root must be an object or boolean")
		}
	}
	patterns := map[string]*regexp.Regexp{}
	if err := collectPatterns(root, patterns); err != nil {
		return nil, err
	}
	return &Schema{compiled: compiled, root: root, patterns: patterns}, nil
}

func CompileFile(schemaPath string) (*Schema, error) {
	// #nosec G304 -- schema path is explicit local configuration.
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(data)
}

// Validate returns the structural violations of document, empty when it conforms.
// Any Go value is accepted; values that do not encode as JSON yield a single
// generic violation.
func (s *Schema) Validate(document any) []string {
	data, err := json.Marshal(document)
	if err != nil {
		return []string{genericEncodingMessage}
	}
	return s.ValidateJSON(data)
}

// ValidateJSON is Validate for an encoded document.
func (s *Schema) ValidateJSON(data []byte) []string {
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return []string{genericEncodingMessage}
	}

	if s.compiled.ValidateJSON(data).IsValid() {
		return []string{}
	}
	walker := renderer{root: s.root, patterns: s.patterns}
	walker.walk(s.root, normalized, "", 0)
	if len(walker.messages) == 0 {
		return []string{genericSchemaMessage}
	}
	return walker.messages
}

func collectPatterns(node any, patterns map[string]*regexp.Regexp) error {
	switch typed := node.(type) {
	case *object:
		if raw, ok := typed.values["pattern"]; ok {
			if expr, isString := raw.(string); isString {
				if _, seen := patterns[expr]; !seen {
					compiled, err := regexp.Compile(expr)
					if err != nil {
						return fmt.Errorf("compile pattern %q: %w", expr, err)
					}
					patterns[expr] = compiled
				}
			}
		}
		for _, key := range typed.keys {
			if err := collectPatterns(typed.values[key], patterns); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range typed {
			if err := collectPatterns(item, patterns); err != nil {
				return err
			}
		}
	}
	return nil
}
