package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Immutable geographic coordinates (latitude, longitude) in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lon, c.Lat} }

// Return coordinates as "lat,lng", the form most map APIs accept for free-text locations.
func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 6, 64)
}

// Validate reports an InputError when either component is out of range or not a number.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return &InputError{Field: "coordinates", Reason: fmt.Sprintf("non-finite value (%v, %v)", c.Lat, c.Lon)}
	}
	if c.Lat < -90 || c.Lat > 90 {
		return &InputError{Field: "latitude", Reason: fmt.Sprintf("%v out of range [-90, 90]", c.Lat)}
	}
	if c.Lon < -180 || c.Lon > 180 {
		return &InputError{Field: "longitude", Reason: fmt.Sprintf("%v out of range [-180, 180]", c.Lon)}
	}
	return nil
}

// Normalized rounds both components to 6 decimals (~0.1m) so equal places produce equal keys.
func (c Coordinates) Normalized() Coordinates {
	return Coordinates{Lat: round6(c.Lat), Lon: round6(c.Lon)}
}

// Less orders coordinates by latitude, then longitude.
func (c Coordinates) Less(o Coordinates) bool {
	if c.Lat != o.Lat {
		return c.Lat < o.Lat
	}
	return c.Lon < o.Lon
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
