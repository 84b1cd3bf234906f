// Package poi holds the pure POI transforms that run ahead of the analysis:
// categorization from OSM tags, seasonal weighting, boundary clipping and
// isochrone source selection. Every function returns new values and leaves
// its input untouched.
package poi

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/tourism-cli/internal/model"
)

var fold = cases.Fold()

// norm case-folds and trims a tag value for comparison.
func norm(v string) string {
	return fold.String(strings.TrimSpace(v))
}

func oneOf(v string, set ...string) bool {
	v = norm(v)
	for _, s := range set {
		if v == norm(s) {
			return true
		}
	}
	return false
}

// Categorize maps raw OSM tags to a category. The first matching rule wins.
func Categorize(t model.Tags) model.Category {
	switch {
	case oneOf(t.Tourism, "museum", "gallery", "artwork"):
		return model.CategoryCulture
	case oneOf(t.Tourism, "hotel", "hostel", "guest_house"):
		return model.CategoryAccommodation
	case oneOf(t.Amenity, "restaurant", "cafe", "bar"):
		return model.CategoryFoodDrink
	case norm(t.Shop) != "":
		return model.CategoryShopping
	case oneOf(t.Tourism, "attraction"):
		return model.CategoryAttraction
	default:
		return model.CategoryOther
	}
}

// WithCategory returns p with its category derived from its tags.
func WithCategory(p model.POI) model.POI {
	p.Category = Categorize(p.Tags)
	return p
}

// Transform applies fn to a copy of every POI.
func Transform(pois []model.POI, fn func(model.POI) model.POI) []model.POI {
	out := make([]model.POI, len(pois))
	for i, p := range pois {
		if p.Seasons != nil {
			s := *p.Seasons
			p.Seasons = &s
		}
		out[i] = fn(p)
	}
	return out
}
