// Package template renders email subjects, bodies and webhook payloads
// against contact attributes and the execution context.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/flowmail/journey/pkg/models"
)

// RenderForContact renders the template with the contact's attributes under
// .contact and the execution context under .context. Standard fields sit at
// the top of .contact; custom fields live under .contact.data.
func RenderForContact(input string, contact *models.Contact, execContext map[string]any) (string, error) {
	data := map[string]any{
		"contact": contact.Attributes(),
		"context": execContext,
	}

	return Render(input, data)
}

func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("render").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"title": func(s string) string {
				if s == "" {
					return s
				}

				return strings.ToUpper(s[:1]) + s[1:]
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	// text/template prints untyped nils as "<no value>"; blank reads better
	// in an email.
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
