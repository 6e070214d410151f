package domain

// Point is a place on a tour: the home location, a private destination, or one
// branch of a category (chain brand). Points are value types and never mutated
// after construction.
type Point struct {
	ID           string
	Name         string
	Address      string
	Coordinates  Coordinates
	DwellSeconds int
	// Category is the brand name for chain candidates and empty for private points.
	Category string
}

// IsCandidate reports whether the point is one branch of a category.
func (p Point) IsCandidate() bool { return p.Category != "" }

// Label returns the most human-readable identifier available.
func (p Point) Label() string {
	if p.Name != "" {
		return p.Name
	}
	if p.ID != "" {
		return p.ID
	}
	return p.Coordinates.String()
}
