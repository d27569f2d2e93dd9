// Package catalog holds the static subscription products offered on the
// pricing page.
package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

// Variant selects the card styling for a product
type Variant string

const (
	VariantDefault    Variant = "default"
	VariantPremium    Variant = "premium"
	VariantEnterprise Variant = "enterprise"
)

// Product is one purchasable tier
type Product struct {
	ID          gotier.AccessLevel `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Features    []string           `json:"features"`
	Price       string             `json:"price"`
	Variant     Variant            `json:"variant"`
}

var products = []Product{
	{
		ID:          gotier.AccessFree,
		Title:       "Free Plan",
		Description: "Perfect for beginners getting started with our platform.",
		Features: []string{
			"Basic features",
			"Email support",
			"5GB storage",
		},
		Price:   "Free",
		Variant: VariantDefault,
	},
	{
		ID:          gotier.AccessBasic,
		Title:       "Basic Plan",
		Description: "Advanced features for growing businesses.",
		Features: []string{
			"All Free features",
			"Priority support",
			"50GB storage",
			"Advanced analytics",
		},
		Price:   "$9.99/month",
		Variant: VariantPremium,
	},
	{
		ID:          gotier.AccessPremium,
		Title:       "Premium Plan",
		Description: "Complete solution for large organizations.",
		Features: []string{
			"All Basic features",
			"24/7 phone support",
			"Unlimited storage",
			"Custom integrations",
			"Dedicated account manager",
		},
		Price:   "$29.99/month",
		Variant: VariantEnterprise,
	},
}

// Products returns a copy of the catalog in display order
func Products() []Product {
	out := make([]Product, len(products))
	for i, p := range products {
		p.Features = append([]string(nil), p.Features...)
		out[i] = p
	}
	return out
}

// Find looks up a product by tier id
func Find(id string) (Product, bool) {
	for _, p := range Products() {
		if string(p.ID) == id {
			return p, true
		}
	}
	return Product{}, false
}

// Handler serves the catalog as JSON
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(map[string]any{"products": Products()})
	})
}
