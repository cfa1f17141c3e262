package engine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/expr-lang/expr"
)

// templateFuncMap supplements the built-in Go template functions in
// document expressions.
var templateFuncMap = template.FuncMap{
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"contains":  strings.Contains,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
}

// buildEnv assembles the evaluation environment: run vars first, then
// result fields (results shadow vars on collision), plus identity
// facts for conditions.
func (e *Engine) buildEnv() map[string]any {
	env := map[string]any{}
	for k, v := range e.run.Vars {
		env[k] = v
	}
	for k, v := range e.run.Results.Fields() {
		env[k] = v
	}
	env["authenticated"] = e.auth.IsAuthenticated()
	return env
}

// render expands {{ .var }} templates against the run environment.
// Strings without template markers pass through untouched.
func (e *Engine) render(s string) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	tmpl, err := template.New("render").
		Funcs(templateFuncMap).
		Option("missingkey=error").
		Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, e.buildEnv()); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// evalCondition evaluates a when-guard with expr-lang. Empty means
// true; the expression must produce a bool.
func (e *Engine) evalCondition(exprStr string) (bool, error) {
	exprStr = strings.TrimSpace(exprStr)
	if exprStr == "" {
		return true, nil
	}
	env := e.buildEnv()
	program, err := expr.Compile(exprStr, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", exprStr, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", exprStr, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", exprStr, output)
	}
	return result, nil
}
