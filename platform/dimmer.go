package platform

import (
	"time"

	"github.com/nathan-osman/go-sunrise"

	c "lautenbacher.net/gogate/config"
)

// NightDimmer scales the light output down between sunset and sunrise.
// A nil or disabled dimmer never dims.
type NightDimmer struct {
	enabled   bool
	latitude  float64
	longitude float64
	factor    float64
}

func NewNightDimmer(cfg c.NightDimConfig) *NightDimmer {
	return &NightDimmer{
		enabled:   cfg.Enabled,
		latitude:  cfg.Latitude,
		longitude: cfg.Longitude,
		factor:    cfg.Factor,
	}
}

// Factor returns the brightness factor to apply at now.
func (d *NightDimmer) Factor(now time.Time) float64 {
	if d == nil || !d.enabled {
		return 1
	}
	rise, set := sunrise.SunriseSunset(d.latitude, d.longitude, now.Year(), now.Month(), now.Day())
	if rise.IsZero() || set.IsZero() {
		// polar day or night, no transition to follow
		return 1
	}
	if now.After(rise) && now.Before(set) {
		return 1
	}
	return d.factor
}
