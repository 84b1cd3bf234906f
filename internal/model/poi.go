package model

import "strings"

// Category is the closed set of tourism POI categories.
type Category string

const (
	CategoryCulture       Category = "Culture"
	CategoryAccommodation Category = "Accommodation"
	CategoryFoodDrink     Category = "Food&Drink"
	CategoryShopping      Category = "Shopping"
	CategoryAttraction    Category = "Attraction"
	CategoryOther         Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryCulture,
	CategoryAccommodation,
	CategoryFoodDrink,
	CategoryShopping,
	CategoryAttraction,
	CategoryOther,
}

// ParseCategory maps a stored category label to a Category. English labels
// and the German labels used by older exports are both accepted; anything
// else falls into CategoryOther.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "culture", "kultur":
		return CategoryCulture
	case "accommodation", "unterkunft":
		return CategoryAccommodation
	case "food&drink", "food_drink", "gastronomie":
		return CategoryFoodDrink
	case "shopping":
		return CategoryShopping
	case "attraction", "attraktion":
		return CategoryAttraction
	default:
		return CategoryOther
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryCulture, CategoryAccommodation, CategoryFoodDrink,
		CategoryShopping, CategoryAttraction, CategoryOther:
		return true
	default:
		return false
	}
}

// SeasonWeights holds the summer and winter affinity of a POI, both in [0,1].
type SeasonWeights struct {
	Summer float64 `json:"summer" yaml:"summer"`
	Winter float64 `json:"winter" yaml:"winter"`
}

// Tags holds the raw OSM tags the categorizer and season rules look at.
type Tags struct {
	Tourism  string `json:"tourism,omitempty"`
	Amenity  string `json:"amenity,omitempty"`
	Shop     string `json:"shop,omitempty"`
	Leisure  string `json:"leisure,omitempty"`
	Historic string `json:"historic,omitempty"`
}

// POI is a point of interest in a projected, locally Euclidean frame.
type POI struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	Category Category       `json:"category"`
	Tags     Tags           `json:"tags"`
	Seasons  *SeasonWeights `json:"seasons,omitempty"`
}

// Coord returns the POI location as an [x, y] pair.
func (p POI) Coord() [2]float64 {
	return [2]float64{p.X, p.Y}
}
