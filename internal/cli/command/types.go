package command

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt64
	FieldFile
	// FieldSecret is prompted for but never echoed back.
	FieldSecret
)

// Field defines a CLI input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
}

// Handler executes a command. The returned value is rendered as JSON.
type Handler func(ctx context.Context, env *Env, params Params) (any, error)

// Command defines a CLI command binding.
type Command struct {
	Service string
	Action  string
	Summary string
	Fields  []Field
	Run     Handler
}

// Key is the registry key: "service action", or "service" alone.
func (c Command) Key() string {
	if c.Action == "" {
		return c.Service
	}
	return c.Service + " " + c.Action
}

// Usage renders the command with its fields.
func (c Command) Usage() string {
	var b strings.Builder
	b.WriteString(c.Key())
	for _, f := range c.Fields {
		if f.Required {
			fmt.Fprintf(&b, " %s=<%s>", f.Name, f.Prompt)
		} else {
			fmt.Fprintf(&b, " [%s=<%s>]", f.Name, f.Prompt)
		}
	}
	return b.String()
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

// Missing lists required fields without a value.
func (p Params) Missing(fields []Field) []Field {
	var out []Field
	for _, field := range fields {
		if field.Required && p.Get(field.Name) == "" {
			out = append(out, field)
		}
	}
	return out
}

// Int64 parses an optional integer param; ok is false when it is absent.
func (p Params) Int64(key string) (int64, bool, error) {
	raw := p.Get(key)
	if raw == "" {
		return 0, false, nil
	}
	n, err := ParseInt64(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, true, nil
}

func ParseInt64(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}

// SourceCode returns code= or the contents of file=.
func SourceCode(params Params) (string, error) {
	if code := params.Get("code"); code != "" {
		return code, nil
	}
	if path := params.Get("file"); path != "" {
		return ReadFile(path)
	}
	return "", nil
}
