package domain

import (
	"fmt"
	"strings"
)

// TravelMode selects how edges between points are priced by the routing provider.
type TravelMode string

const (
	TravelModeDriving   TravelMode = "driving"
	TravelModeWalking   TravelMode = "walking"
	TravelModeBicycling TravelMode = "bicycling"
	TravelModeTransit   TravelMode = "transit"
)

// ParseTravelMode accepts the canonical names plus the upper-case aliases used by map SDKs.
// An empty string selects driving.
func ParseTravelMode(s string) (TravelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "driving", "drive", "car":
		return TravelModeDriving, nil
	case "walking", "walk":
		return TravelModeWalking, nil
	case "bicycling", "cycling", "bike":
		return TravelModeBicycling, nil
	case "transit", "bus":
		return TravelModeTransit, nil
	}
	return "", &InputError{Field: "mode", Reason: fmt.Sprintf("unsupported travel mode %q", s)}
}
