package gotier

import "fmt"

// PriceConfig holds the processor price ids sold for the paid tiers
type PriceConfig struct {
	BasicPriceID   string
	PremiumPriceID string
}

// Configured reports whether both paid tiers have a price id
func (c PriceConfig) Configured() bool {
	return c.BasicPriceID != "" && c.PremiumPriceID != ""
}

// PriceFor returns the price id sold for level. Free has no price.
func (c PriceConfig) PriceFor(level AccessLevel) (string, bool) {
	var id string
	switch level {
	case AccessBasic:
		id = c.BasicPriceID
	case AccessPremium:
		id = c.PremiumPriceID
	}
	return id, id != ""
}

// ResolveTier maps purchased price ids to a single access level.
//
// A premium match anywhere in the list wins over basic. No match, or an
// empty list, yields free. When either price id is unconfigured the result
// is free together with an error wrapping ErrConfiguration; callers log it
// and continue with the returned level.
func ResolveTier(priceIDs []string, prices PriceConfig) (AccessLevel, error) {
	if !prices.Configured() {
		return AccessFree, fmt.Errorf("%w: basic and premium price ids must both be set", ErrConfiguration)
	}

	level := AccessFree
	for _, id := range priceIDs {
		switch id {
		case prices.PremiumPriceID:
			return AccessPremium, nil
		case prices.BasicPriceID:
			level = AccessBasic
		}
	}
	return level, nil
}
