package authoring

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-clinicform/pkg/model"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// sanitizeText strips markup from author-supplied display text. Entities the
// policy escapes are decoded again so "Q&A" survives a round trip.
func sanitizeText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	cleaned := textSanitizer().Sanitize(trimmed)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

func sanitizeForm(form *model.FormModel) {
	form.Title = sanitizeText(form.Title)
	for si := range form.Steps {
		step := &form.Steps[si]
		step.Title = sanitizeText(step.Title)
		for fi := range step.Fields {
			field := &step.Fields[fi]
			field.Label = sanitizeText(field.Label)
			field.Placeholder = sanitizeText(field.Placeholder)
			field.Help = sanitizeText(field.Help)
			for oi := range field.Options {
				field.Options[oi].Label = sanitizeText(field.Options[oi].Label)
			}
		}
	}
}
