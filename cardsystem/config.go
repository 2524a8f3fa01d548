package cardsystem

import (
	"github.com/abebabank/abeba-card-system/internal/cardgen"
	"github.com/abebabank/abeba-card-system/internal/expiry"
)

// Config is a configuration for the card system application
type Config struct {
	HTTPAddr    string
	ISO8583Addr string
	// BrandPrefix is the fixed leading digit sequence of every issued card number.
	BrandPrefix string
	// ValidityYears is how many years newly issued cards are valid for.
	ValidityYears int
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:      "localhost:8080",
		ISO8583Addr:   "localhost:8583",
		BrandPrefix:   cardgen.BrandPrefix,
		ValidityYears: expiry.DefaultValidityYears,
	}
}
