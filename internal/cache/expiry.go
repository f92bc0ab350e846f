package cache

import (
	"strconv"
	"time"

	"github.com/ginmihq/ginmi/internal/errors"
)

// ParseExpiry converts a compact expiry spec ("30s", "15m", "12h", "3D",
// "1W", "2M", "1Y") to a duration. Empty means never expire and returns
// zero. Months are 30 days and years 365 for retention purposes.
func ParseExpiry(spec string) (time.Duration, error) {
	if spec == "" {
		return 0, nil
	}
	if len(spec) < 2 {
		return 0, errors.Configuration("invalid cache expiry " + strconv.Quote(spec))
	}

	value, err := strconv.Atoi(spec[:len(spec)-1])
	if err != nil || value < 0 {
		return 0, errors.Configuration("invalid cache expiry " + strconv.Quote(spec))
	}

	var unit time.Duration
	switch spec[len(spec)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'D':
		unit = 24 * time.Hour
	case 'W':
		unit = 7 * 24 * time.Hour
	case 'M':
		unit = 30 * 24 * time.Hour
	case 'Y':
		unit = 365 * 24 * time.Hour
	default:
		return 0, errors.Configuration("invalid cache expiry unit " + strconv.Quote(spec))
	}

	return time.Duration(value) * unit, nil
}
