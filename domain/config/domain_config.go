package config

import (
	"time"

	pkgerrors "loom-backend/pkg/errors"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Canvas constraints
	MaxCardsPerCanvas int
	MaxEdgesPerCanvas int
	MaxOpenCanvases   int
	DefaultCanvasName string

	// Context composition
	// MaxAncestorDepth bounds the breadth-first ancestor walk used for
	// context assembly and fingerprinting. It is a safety bound for
	// pathological graphs, not a semantic constant.
	MaxAncestorDepth   int
	SummaryPrefixRunes int

	// History
	MaxHistoryDepth int
	HistoryDebounce time.Duration

	// Staleness
	StaleRecheckDebounce time.Duration

	// Validation settings
	AllowEmptyPrompt bool
	AllowSelfEdges   bool
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Canvas constraints
		MaxCardsPerCanvas: 10000,
		MaxEdgesPerCanvas: 50000,
		MaxOpenCanvases:   64,
		DefaultCanvasName: "Untitled Canvas",

		// Context composition
		MaxAncestorDepth:   8,
		SummaryPrefixRunes: 200,

		// History
		MaxHistoryDepth: 100,
		HistoryDebounce: 400 * time.Millisecond,

		// Staleness
		StaleRecheckDebounce: 250 * time.Millisecond,

		// Validation settings
		AllowEmptyPrompt: true,
		AllowSelfEdges:   false,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More restrictive limits for production
	config.MaxCardsPerCanvas = 5000
	config.MaxEdgesPerCanvas = 25000
	config.MaxOpenCanvases = 32
	config.MaxHistoryDepth = 50

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More permissive for development
	config.MaxCardsPerCanvas = 100000
	config.MaxEdgesPerCanvas = 500000
	config.MaxOpenCanvases = 256
	config.MaxHistoryDepth = 500
	config.HistoryDebounce = 100 * time.Millisecond

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MaxAncestorDepth < 1 {
		return pkgerrors.NewValidation("MaxAncestorDepth must be at least 1")
	}
	if c.SummaryPrefixRunes < 0 {
		return pkgerrors.NewValidation("SummaryPrefixRunes cannot be negative")
	}
	if c.MaxHistoryDepth < 1 {
		return pkgerrors.NewValidation("MaxHistoryDepth must be at least 1")
	}
	if c.HistoryDebounce < 0 {
		return pkgerrors.NewValidation("HistoryDebounce cannot be negative")
	}
	if c.StaleRecheckDebounce < 0 {
		return pkgerrors.NewValidation("StaleRecheckDebounce cannot be negative")
	}
	if c.MaxCardsPerCanvas < 1 {
		return pkgerrors.NewValidation("MaxCardsPerCanvas must be at least 1")
	}
	if c.MaxOpenCanvases < 1 {
		return pkgerrors.NewValidation("MaxOpenCanvases must be at least 1")
	}
	return nil
}
