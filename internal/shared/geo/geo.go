package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two WGS84
// coordinates in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// LineStringWKT encodes coordinates ([lng, lat] pairs) as a WKT LINESTRING.
// Returns "" when fewer than two coordinates are given, since a one-point
// linestring is not valid geometry.
func LineStringWKT(coords [][2]float64) string {
	if len(coords) < 2 {
		return ""
	}
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = fmt.Sprintf("%v %v", c[0], c[1])
	}
	return "LINESTRING(" + strings.Join(parts, ", ") + ")"
}

// ParseLineStringWKT decodes a WKT LINESTRING into [lng, lat] pairs.
func ParseLineStringWKT(wkt string) ([][2]float64, error) {
	trimmed := strings.TrimSpace(wkt)
	if trimmed == "" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "LINESTRING(") || !strings.HasSuffix(trimmed, ")") {
		return nil, fmt.Errorf("not a linestring: %q", wkt)
	}
	body := trimmed[len("LINESTRING(") : len(trimmed)-1]

	var coords [][2]float64
	for _, pair := range strings.Split(body, ",") {
		fields := strings.Fields(pair)
		if len(fields) != 2 {
			return nil, fmt.Errorf("bad coordinate %q", pair)
		}
		lng, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, err
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, err
		}
		coords = append(coords, [2]float64{lng, lat})
	}
	return coords, nil
}

// PathLengthKm sums haversine distances along a [lng, lat] coordinate list.
func PathLengthKm(coords [][2]float64) float64 {
	total := 0.0
	for i := 1; i < len(coords); i++ {
		total += HaversineKm(coords[i-1][1], coords[i-1][0], coords[i][1], coords[i][0])
	}
	return total
}
