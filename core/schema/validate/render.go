package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-yaml"
	"github.com/kaptinlin/jsonschema"
)

// object is a decoded JSON object that remembers key order.
type object struct {
	keys   []string
	values map[string]any
}

func (o *object) get(key string) (any, bool) {
	value, ok := o.values[key]
	return value, ok
}

func toNode(value any) any {
	switch typed := value.(type) {
	case yaml.MapSlice:
		node := &object{keys: make([]string, 0, len(typed)), values: make(map[string]any, len(typed))}
		for _, item := range typed {
			key := fmt.Sprint(item.Key)
			if _, exists := node.values[key]; !exists {
				node.keys = append(node.keys, key)
			}
			node.values[key] = toNode(item.Value)
		}
		return node
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		node := &object{keys: keys, values: make(map[string]any, len(typed))}
		for _, key := range keys {
			node.values[key] = toNode(typed[key])
		}
		return node
	case []any:
		items := make([]any, len(typed))
		for index, item := range typed {
			items[index] = toNode(item)
		}
		return items
	default:
		return typed
	}
}

// plain converts a schema node into the shape encoding/json produces so it can
// be compared with, or rendered like, document values.
func plain(node any) any {
	switch typed := node.(type) {
	case *object:
		out := make(map[string]any, len(typed.keys))
		for _, key := range typed.keys {
			out[key] = plain(typed.values[key])
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for index, item := range typed {
			out[index] = plain(item)
		}
		return out
	default:
		if number, ok := toFloat(typed); ok {
			return number
		}
		return typed
	}
}

type renderer struct {
	root     any
	patterns map[string]*regexp.Regexp
	messages []string
}

func (r *renderer) emit(pointer, format string, args ...any) {
	r.messages = append(r.messages, location(pointer)+" "+fmt.Sprintf(format, args...))
}

func location(pointer string) string {
	if pointer == "" {
		return "root"
	}
	return "property '" + pointer + "'"
}

func (r *renderer) walk(schema any, value any, pointer string, depth int) {
	if depth > maxRefDepth {
		return
	}
	node, ok := schema.(*object)
	if !ok {
		if allowed, isBool := schema.(bool); isBool && !allowed {
			r.emit(pointer, "is invalid: error_type=schema")
		}
		return
	}

	if declared, exists := node.get("type"); exists && !matchesAnyType(declared, value) {
		r.emit(pointer, "is not of type: %s", typeNames(declared))
		return
	}

	for _, keyword := range node.keys {
		raw := node.values[keyword]
		switch keyword {
		case "required":
			r.required(raw, value, pointer)
		case "properties":
			r.properties(raw, value, pointer, depth)
		case "items":
			r.items(raw, value, pointer, depth)
		case "pattern":
			r.pattern(raw, value, pointer)
		case "enum":
			r.enum(raw, value, pointer)
		case "const":
			if !reflect.DeepEqual(plain(raw), value) {
				r.emit(pointer, "is not: %s", renderJSON(raw))
			}
		case "format":
			r.format(raw, value, pointer)
		case "minItems":
			if items, isArray := value.([]any); isArray {
				if limit, ok := toFloat(raw); ok && float64(len(items)) < limit {
					r.emit(pointer, "is invalid: error_type=minItems")
				}
			}
		case "minLength":
			if text, isString := value.(string); isString {
				if limit, ok := toFloat(raw); ok && float64(utf8.RuneCountInString(text)) < limit {
					r.emit(pointer, "is invalid: error_type=minLength")
				}
			}
		case "allOf":
			if branches, isList := raw.([]any); isList {
				for _, branch := range branches {
					r.walk(branch, value, pointer, depth+1)
				}
			}
		case "$ref":
			if ref, isString := raw.(string); isString {
				if target, found := r.resolve(ref); found {
					r.walk(target, value, pointer, depth+1)
				}
			}
		}
	}
}

func (r *renderer) required(raw any, value any, pointer string) {
	document, isObject := value.(map[string]any)
	names, isList := raw.([]any)
	if !isObject || !isList {
		return
	}
	missing := make([]string, 0)
	for _, name := range names {
		key, isString := name.(string)
		if !isString {
			continue
		}
		if _, present := document[key]; !present {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		r.emit(pointer, "is missing required keys: %s", strings.Join(missing, ", "))
	}
}

func (r *renderer) properties(raw any, value any, pointer string, depth int) {
	document, isObject := value.(map[string]any)
	declared, isNode := raw.(*object)
	if !isObject || !isNode {
		return
	}
	for _, name := range declared.keys {
		child, present := document[name]
		if !present {
			continue
		}
		r.walk(declared.values[name], child, pointer+"/"+escapePointer(name), depth+1)
	}
}

func (r *renderer) items(raw any, value any, pointer string, depth int) {
	elements, isArray := value.([]any)
	if !isArray {
		return
	}
	switch raw.(type) {
	case *object, bool:
	default:
		return
	}
	for index, element := range elements {
		r.walk(raw, element, pointer+"/"+strconv.Itoa(index), depth+1)
	}
}

func (r *renderer) pattern(raw any, value any, pointer string) {
	text, isString := value.(string)
	expr, isPattern := raw.(string)
	if !isString || !isPattern {
		return
	}
	compiled, ok := r.patterns[expr]
	if !ok {
		return
	}
	if !compiled.MatchString(text) {
		r.emit(pointer, "does not match pattern: %s", expr)
	}
}

func (r *renderer) enum(raw any, value any, pointer string) {
	allowed, isList := raw.([]any)
	if !isList {
		return
	}
	for _, candidate := range allowed {
		if reflect.DeepEqual(plain(candidate), value) {
			return
		}
	}
	r.emit(pointer, "is not one of: %s", renderJSON(raw))
}

func (r *renderer) format(raw any, value any, pointer string) {
	name, isName := raw.(string)
	if !isName {
		return
	}
	check, known := jsonschema.Formats[name]
	if !known || check(value) {
		return
	}
	r.emit(pointer, "does not match format: %s", name)
}

func (r *renderer) resolve(ref string) (any, bool) {
	if ref == "#" {
		return r.root, true
	}
	if !strings.HasPrefix(ref, "#/") {
		return nil, false
	}
	current := r.root
	for _, token := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		switch typed := current.(type) {
		case *object:
			next, ok := typed.get(token)
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(token)
			if err != nil || index < 0 || index >= len(typed) {
				return nil, false
			}
			current = typed[index]
		default:
			return nil, false
		}
	}
	return current, true
}

func escapePointer(token string) string {
	return strings.ReplaceAll(strings.ReplaceAll(token, "~", "~0"), "/", "~1")
}

func matchesAnyType(declared any, value any) bool {
	switch typed := declared.(type) {
	case string:
		return matchesType(typed, value)
	case []any:
		for _, candidate := range typed {
			if name, ok := candidate.(string); ok && matchesType(name, value) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func matchesType(name string, value any) bool {
	switch name {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		number, ok := value.(float64)
		return ok && number == math.Trunc(number)
	default:
		return true
	}
}

func typeNames(declared any) string {
	switch typed := declared.(type) {
	case string:
		return typed
	case []any:
		names := make([]string, 0, len(typed))
		for _, candidate := range typed {
			names = append(names, fmt.Sprint(candidate))
		}
		return strings.Join(names, ", ")
	default:
		return fmt.Sprint(typed)
	}
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case json.Number:
		number, err := typed.Float64()
		return number, err == nil
	default:
		return 0, false
	}
}

func renderJSON(node any) string {
	encoded, err := json.Marshal(plain(node))
	if err != nil {
		return fmt.Sprint(node)
	}
	return string(encoded)
}
