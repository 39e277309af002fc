package forecast

import "fmt"

// Config is passed explicitly to each model; there is no package state.
type Config struct {
	Level             float64 // Two-sided interval coverage, e.g. 0.80
	Harmonics         int     // Yearly Fourier pairs
	SeasonalMinMonths int     // Fit points required before seasonality is modelled
	TrailingWindow    int     // Months averaged into the baseline
	WidenFactor       float64 // Interval multiplier for fallback and low-confidence fits
	FallbackSpread    float64 // Fraction of |mean| used when no spread can be estimated
}

func DefaultConfig() Config {
	return Config{
		Level:             0.80,
		Harmonics:         3,
		SeasonalMinMonths: 24,
		TrailingWindow:    12,
		WidenFactor:       1.5,
		FallbackSpread:    0.25,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Level <= 0 || c.Level >= 1:
		return fmt.Errorf("interval level must be in (0, 1), got %v", c.Level)
	case c.Harmonics < 1 || c.Harmonics > 5:
		return fmt.Errorf("harmonics must be between 1 and 5, got %d", c.Harmonics)
	case c.SeasonalMinMonths < 12:
		return fmt.Errorf("seasonal minimum must be at least 12 months, got %d", c.SeasonalMinMonths)
	case c.TrailingWindow < 1:
		return fmt.Errorf("trailing window must be at least 1, got %d", c.TrailingWindow)
	case c.WidenFactor < 1:
		return fmt.Errorf("widen factor must be at least 1, got %v", c.WidenFactor)
	case c.FallbackSpread <= 0:
		return fmt.Errorf("fallback spread must be positive, got %v", c.FallbackSpread)
	}
	return nil
}
