// Package mailer renders outgoing email content from named templates.
// Rendering is strict: a template variable with no binding aborts the
// render, because a partially substituted message must never reach the
// supervision queue where a reviewer could send it.
package mailer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/osteele/liquid"
)

// ErrUnknownTemplate is returned for a template name with no entry in
// the registry.
var ErrUnknownTemplate = errors.New("unknown email template")

// ErrUnresolvedVar is returned when the context is missing a variable
// the template references.
var ErrUnresolvedVar = errors.New("unresolved template variable")

// placeholderRe extracts variable names from {{ ... }} expressions.
// Only the root identifier matters for binding checks.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)`)

// Renderer renders subject and body for a named template against a
// context map using the Liquid engine.
type Renderer struct {
	engine *liquid.Engine
}

// NewRenderer builds a Renderer with a stock Liquid engine.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render produces (subject, body) for the named template. Before any
// Liquid evaluation it collects every placeholder in both subject and
// body and fails with ErrUnresolvedVar if the context lacks one, so an
// incomplete context can never produce partially rendered output.
func (r *Renderer) Render(name string, ctx map[string]any) (string, string, error) {
	tpl, ok := Lookup(name)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	if err := checkBindings(tpl.Subject, ctx); err != nil {
		return "", "", fmt.Errorf("template %q subject: %w", name, err)
	}
	if err := checkBindings(tpl.Body, ctx); err != nil {
		return "", "", fmt.Errorf("template %q body: %w", name, err)
	}
	subject, err := r.engine.ParseAndRenderString(tpl.Subject, liquid.Bindings(ctx))
	if err != nil {
		return "", "", fmt.Errorf("render template %q subject: %w", name, err)
	}
	body, err := r.engine.ParseAndRenderString(tpl.Body, liquid.Bindings(ctx))
	if err != nil {
		return "", "", fmt.Errorf("render template %q body: %w", name, err)
	}
	return strings.TrimSpace(subject), strings.TrimSpace(body), nil
}

// Vars lists the distinct root variables a template references, in
// order of first appearance. Exposed so the supervision edit flow can
// report which overrides a template accepts.
func Vars(name string) ([]string, error) {
	tpl, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	seen := map[string]bool{}
	var out []string
	for _, src := range []string{tpl.Subject, tpl.Body} {
		for _, m := range placeholderRe.FindAllStringSubmatch(src, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out, nil
}

func checkBindings(src string, ctx map[string]any) error {
	for _, m := range placeholderRe.FindAllStringSubmatch(src, -1) {
		v := m[1]
		if val, ok := ctx[v]; !ok || val == nil {
			return fmt.Errorf("%w: %s", ErrUnresolvedVar, v)
		}
	}
	return nil
}
