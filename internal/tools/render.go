package tools

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"text/template"
)

// argvData is what argv templates are rendered against.
type argvData struct {
	Name    string
	RunID   string
	Args    map[string]any
	Options map[string]any
}

func argvFuncs(d *argvData) template.FuncMap {
	return template.FuncMap{
		// arg and opt yield "" for missing keys so optional flags can drop out
		"arg": func(key string) string { return textOf(d.Args[key]) },
		"opt": func(key string) string { return textOf(d.Options[key]) },
		"join": func(sep string, v any) string {
			return strings.Join(textsOf(v), sep)
		},
	}
}

// parseArgv checks argv templates once when a tool is built.
func parseArgv(name string, argv []string) error {
	var d argvData
	for i, a := range argv {
		if _, err := template.New(fmt.Sprintf("%s[%d]", name, i)).Funcs(argvFuncs(&d)).Parse(a); err != nil {
			return fmt.Errorf("command[%d]: %w", i, err)
		}
	}
	return nil
}

// renderArgv renders each argv template. Entries that render empty are
// dropped, except the program itself.
func renderArgv(name string, argv []string, d *argvData) ([]string, error) {
	out := make([]string, 0, len(argv))
	for i, a := range argv {
		tpl, err := template.New(fmt.Sprintf("%s[%d]", name, i)).Funcs(argvFuncs(d)).Parse(a)
		if err != nil {
			return nil, fmt.Errorf("command[%d]: %w", i, err)
		}
		var buf bytes.Buffer
		if err := tpl.Execute(&buf, d); err != nil {
			return nil, fmt.Errorf("command[%d]: %w", i, err)
		}
		s := buf.String()
		if s == "" && i > 0 {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 || out[0] == "" {
		return nil, fmt.Errorf("command renders to no program")
	}
	return out, nil
}

func textOf(v any) string {
	if v == nil {
		return ""
	}
	if ss := textsOf(v); ss != nil {
		return strings.Join(ss, ",")
	}
	return fmt.Sprint(v)
}

func textsOf(v any) []string {
	if s, ok := v.(string); ok {
		return []string{s}
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, fmt.Sprint(rv.Index(i).Interface()))
	}
	return out
}
