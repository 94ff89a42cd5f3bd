package restoration

import (
	"math"
	"strconv"
	"strings"

	"archRenew/internal/storage"
)

// DefaultStyle is applied when the requested style is empty or unknown.
const DefaultStyle = "Modern renovation"

// Styles lists the supported restoration styles in presentation order.
var Styles = []string{
	"Modern renovation",
	"Historical restoration",
	"Eco-friendly renovation",
	"Luxury upgrade",
	"Commercial conversion",
	"Residential conversion",
	"Mixed-use development",
	"Minimalist restoration",
}

// ParseStyle matches raw case-insensitively against Styles. The second return
// value is false when raw was non-empty but unknown.
func ParseStyle(raw string) (string, bool) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return DefaultStyle, true
	}
	for _, style := range Styles {
		if strings.EqualFold(style, clean) {
			return style, true
		}
	}
	return DefaultStyle, false
}

// ParseLocation returns a location only when both coordinates are present,
// finite and within range.
func ParseLocation(lat, lon string) *storage.Location {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" || lon == "" {
		return nil
	}
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil
	}
	if !finite(latitude) || !finite(longitude) || math.Abs(latitude) > 90 || math.Abs(longitude) > 180 {
		return nil
	}
	return &storage.Location{Lat: latitude, Lon: longitude}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
