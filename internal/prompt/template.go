package prompt

import (
	"strings"

	"github.com/parlance-ai/parlance/internal/domain"
)

// RenderTemplate substitutes contact and offer placeholders into a campaign
// message template.
//
// Recognised placeholders: {first_name}, {last_name}, {full_name},
// {company_name}, {email}, and when an offer is attached, {offer_name},
// {offer_discount}, {offer_description}, {offer_terms}. Matching is
// case-insensitive and literal; no expression syntax. Unknown placeholders
// are left untouched so a malformed template degrades to its original text
// instead of failing the send.
func RenderTemplate(template string, contact domain.Contact, offer *domain.Offer) string {
	values := map[string]string{
		"first_name":   contact.FirstName,
		"last_name":    contact.LastName,
		"full_name":    contact.FullName(),
		"company_name": contact.CompanyName,
		"email":        contact.Email,
	}
	if offer != nil {
		values["offer_name"] = offer.Name
		values["offer_discount"] = offer.Discount
		values["offer_description"] = offer.Description
		values["offer_terms"] = offer.Terms
	}

	var sb strings.Builder
	sb.Grow(len(template))

	for i := 0; i < len(template); {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			sb.WriteString(template[i:])
			break
		}
		open += i
		sb.WriteString(template[i:open])

		end := strings.IndexByte(template[open:], '}')
		if end < 0 {
			sb.WriteString(template[open:])
			break
		}
		end += open

		key := strings.ToLower(template[open+1 : end])
		if v, ok := values[key]; ok {
			sb.WriteString(v)
		} else {
			sb.WriteString(template[open : end+1])
		}
		i = end + 1
	}

	return sb.String()
}
