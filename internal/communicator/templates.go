package communicator

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/smallbiznis/cashapp/internal/communicator/domain"
)

// staticRegistry is the built-in {name -> template} registry for the four
// communications the Orchestrator's branch table dispatches (spec.md §4.4,
// §4.5). A future registry backed by the Audit Store could implement
// domain.TemplateRegistry the same way without changing the Communicator.
type staticRegistry struct {
	templates map[string]domain.Template
}

func newStaticRegistry() *staticRegistry {
	entries := []domain.Template{
		{
			Name:            "payment-confirmation",
			SubjectTemplate: "Payment received — transaction {{.transaction_id}}",
			BodyTemplate:    "We've matched and applied your payment (transaction {{.transaction_id}}) in full. No further action is needed.",
			RequiredFields:  []string{"transaction_id"},
		},
		{
			Name:            "short-payment-clarification",
			SubjectTemplate: "Payment {{.transaction_id}} applied with a remaining balance",
			BodyTemplate:    "Your payment (transaction {{.transaction_id}}) was applied to the matched invoice(s), leaving an unapplied balance of {{.unapplied_amount}}. Please let us know how you'd like this resolved.",
			RequiredFields:  []string{"transaction_id", "unapplied_amount"},
		},
		{
			Name:            "over-payment-alert",
			SubjectTemplate: "Overpayment on transaction {{.transaction_id}}",
			BodyTemplate:    "Transaction {{.transaction_id}} exceeds the matched invoice amount by {{.unapplied_amount}} ({{.discrepancy_code}}). The excess is left unapplied for review.",
			RequiredFields:  []string{"transaction_id", "unapplied_amount", "discrepancy_code"},
		},
		{
			Name:            "requires-review-alert",
			SubjectTemplate: "Transaction {{.transaction_id}} requires manual review",
			BodyTemplate:    "Transaction {{.transaction_id}} could not be matched automatically (status {{.status}}, {{.discrepancy_code}}). It has been routed for manual review.",
			RequiredFields:  []string{"transaction_id", "status"},
		},
	}

	reg := &staticRegistry{templates: make(map[string]domain.Template, len(entries))}
	for _, t := range entries {
		reg.templates[t.Name] = t
	}
	return reg
}

func (r *staticRegistry) Lookup(name string) (domain.Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// render executes a template's subject and body against event data,
// text/template for the subject line and html/template for the body so
// recipient-supplied data can never inject markup into the rendered
// message.
func render(t domain.Template, data map[string]any) (subject, body string, err error) {
	subjectTmpl, err := template.New(t.Name + ".subject").Parse(t.SubjectTemplate)
	if err != nil {
		return "", "", fmt.Errorf("parse subject template %s: %w", t.Name, err)
	}
	var subjectBuf bytes.Buffer
	if err := subjectTmpl.Execute(&subjectBuf, data); err != nil {
		return "", "", fmt.Errorf("render subject template %s: %w", t.Name, err)
	}

	bodyTmpl, err := htmltemplate.New(t.Name + ".body").Parse(t.BodyTemplate)
	if err != nil {
		return "", "", fmt.Errorf("parse body template %s: %w", t.Name, err)
	}
	var bodyBuf bytes.Buffer
	if err := bodyTmpl.Execute(&bodyBuf, data); err != nil {
		return "", "", fmt.Errorf("render body template %s: %w", t.Name, err)
	}

	return subjectBuf.String(), bodyBuf.String(), nil
}

func validateRequiredFields(t domain.Template, data map[string]any) error {
	for _, field := range t.RequiredFields {
		if _, ok := data[field]; !ok {
			return fmt.Errorf("%w: %s.%s", domain.ErrMissingField, t.Name, field)
		}
	}
	return nil
}
