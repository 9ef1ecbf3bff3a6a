package prompt

import (
	"strings"
	"testing"

	"github.com/parlance-ai/parlance/internal/domain"
)

var templateContact = domain.Contact{
	FirstName:   "Alice",
	LastName:    "Smith",
	CompanyName: "Smith Consulting",
	Email:       "alice@example.com",
}

var templateOffer = domain.Offer{
	Name:        "Spring Promo",
	Discount:    "20% off",
	Description: "One free cleaning",
	Terms:       "new patients only",
}

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		offer    *domain.Offer
		want     string
	}{
		{
			"contact fields",
			"Hi {first_name} {last_name} from {company_name}!",
			nil,
			"Hi Alice Smith from Smith Consulting!",
		},
		{
			"full name and email",
			"{full_name} <{email}>",
			nil,
			"Alice Smith <alice@example.com>",
		},
		{
			"case insensitive",
			"Hi {First_Name}, re: {OFFER_NAME}",
			&templateOffer,
			"Hi Alice, re: Spring Promo",
		},
		{
			"offer fields",
			"{offer_name}: {offer_discount}. {offer_description} ({offer_terms})",
			&templateOffer,
			"Spring Promo: 20% off. One free cleaning (new patients only)",
		},
		{
			"unknown placeholder untouched",
			"Hi {first_name}, your {order_id} shipped",
			nil,
			"Hi Alice, your {order_id} shipped",
		},
		{
			"offer placeholder without offer untouched",
			"Try {offer_name}",
			nil,
			"Try {offer_name}",
		},
		{
			"unclosed brace preserved",
			"Hi {first_name",
			nil,
			"Hi {first_name",
		},
		{
			"no placeholders",
			"Just a plain message.",
			nil,
			"Just a plain message.",
		},
		{
			"empty template",
			"",
			nil,
			"",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RenderTemplate(tc.template, templateContact, tc.offer)
			if got != tc.want {
				t.Errorf("RenderTemplate(%q) = %q, want %q", tc.template, got, tc.want)
			}
		})
	}
}

func TestRenderTemplate_KnownPlaceholdersLeaveNoTokens(t *testing.T) {
	template := "{first_name} {last_name} {full_name} {company_name} {email} " +
		"{offer_name} {offer_discount} {offer_description} {offer_terms}"
	got := RenderTemplate(template, templateContact, &templateOffer)
	if strings.ContainsAny(got, "{}") {
		t.Errorf("rendered output still contains placeholder tokens: %q", got)
	}
}
