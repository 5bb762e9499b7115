package template

import (
	"fmt"
	"strings"

	"github.com/haiminhvu/mailflow/internal/domain"
)

// FallbackSubject is used when no knowledge entry supplies a title.
const FallbackSubject = "ご案内"

const (
	tokenCompany       = "{{会社名}}"
	tokenName          = "{{名前}}"
	tokenTitle         = "{{Title}}"
	tokenCaseStudyList = "{{CaseStudy_List}}"

	caseStudySlots = 10
	bulletGlyph    = "・"
	listSuffix     = " など"
)

// Rendered is the per-recipient output of the template engine.
type Rendered struct {
	Subject string
	Body    string
}

// Render substitutes the customer and case-study tokens into the template
// and prepends the greeting header. Tokens are literal strings, replaced
// verbatim; slots without a matching case study resolve to empty.
func Render(customer domain.Customer, templateBody string, sel Selection) Rendered {
	name := stripSama(customer.Name)
	header := headerLine(customer.Company, name)

	body := templateBody
	body = strings.ReplaceAll(body, tokenCompany, customer.Company)
	body = strings.ReplaceAll(body, tokenName, name)
	body = strings.ReplaceAll(body, tokenTitle, sel.Title)
	body = strings.ReplaceAll(body, tokenCaseStudyList, CaseStudyBlock(sel.CaseStudies))

	for i := 1; i <= caseStudySlots; i++ {
		var slot string
		if i <= len(sel.CaseStudies) {
			slot = sel.CaseStudies[i-1]
		}
		body = strings.ReplaceAll(body, fmt.Sprintf("{{CaseStudy_%d}}", i), slot)
	}

	subject := sel.Title
	if strings.TrimSpace(subject) == "" {
		subject = FallbackSubject
	}

	return Rendered{
		Subject: subject,
		Body:    header + "\n\n" + body,
	}
}

// CaseStudyBlock bullets and joins the selected snippets, closing with the
// Japanese etc. suffix. Empty input yields an empty string.
func CaseStudyBlock(caseStudies []string) string {
	if len(caseStudies) == 0 {
		return ""
	}

	lines := make([]string, 0, len(caseStudies))
	for _, cs := range caseStudies {
		trimmed := strings.TrimSpace(cs)
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, bulletGlyph))
		if trimmed == "" {
			continue
		}
		lines = append(lines, bulletGlyph+trimmed)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + listSuffix
}

// headerLine renders the greeting. An empty name still gets the honorific
// on its own; an empty company drops the company line entirely.
func headerLine(company, name string) string {
	greeting := ensureSama(name)
	if company == "" {
		return greeting
	}
	return company + "\n" + greeting
}

func ensureSama(name string) string {
	if name == "" {
		return "様"
	}
	return name + " 様"
}

func stripSama(name string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(name), "様"))
}
