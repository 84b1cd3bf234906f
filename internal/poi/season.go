package poi

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tourism-cli/internal/model"
)

// Override replaces the category weights when a tag holds one of Values.
type Override struct {
	Tag     string              `yaml:"tag"`
	Values  []string            `yaml:"values"`
	Weights model.SeasonWeights `yaml:"weights"`
}

// SeasonRules assigns summer and winter weights to POIs.
type SeasonRules struct {
	Base      map[model.Category]model.SeasonWeights `yaml:"base"`
	Fallback  model.SeasonWeights                    `yaml:"fallback"`
	Overrides []Override                             `yaml:"overrides"`
}

// DefaultSeasonRules returns the built-in rule set.
func DefaultSeasonRules() SeasonRules {
	return SeasonRules{
		Base: map[model.Category]model.SeasonWeights{
			model.CategoryCulture:       {Summer: 0.4, Winter: 0.9},
			model.CategoryAccommodation: {Summer: 0.5, Winter: 0.5},
			model.CategoryFoodDrink:     {Summer: 0.6, Winter: 0.6},
			model.CategoryShopping:      {Summer: 0.7, Winter: 0.7},
			model.CategoryAttraction:    {Summer: 0.6, Winter: 0.6},
			model.CategoryOther:         {Summer: 0.3, Winter: 0.3},
		},
		Fallback: model.SeasonWeights{Summer: 0.4, Winter: 0.4},
		Overrides: []Override{
			{Tag: "leisure", Values: []string{"park", "garden"}, Weights: model.SeasonWeights{Summer: 1.0, Winter: 0.2}},
			{Tag: "tourism", Values: []string{"viewpoint"}, Weights: model.SeasonWeights{Summer: 0.8, Winter: 0.1}},
			{Tag: "amenity", Values: []string{"theatre", "cinema", "nightclub"}, Weights: model.SeasonWeights{Summer: 0.3, Winter: 0.9}},
		},
	}
}

// LoadSeasonRules reads a YAML rule file. Categories missing from the
// file keep their built-in weights; overrides replace the built-in list
// when present.
func LoadSeasonRules(path string) (SeasonRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeasonRules{}, eris.Wrapf(err, "poi: read season rules %s", path)
	}
	var file SeasonRules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return SeasonRules{}, eris.Wrapf(err, "poi: parse season rules %s", path)
	}

	rules := DefaultSeasonRules()
	for c, w := range file.Base {
		rules.Base[model.ParseCategory(string(c))] = w
	}
	if file.Fallback != (model.SeasonWeights{}) {
		rules.Fallback = file.Fallback
	}
	if file.Overrides != nil {
		rules.Overrides = file.Overrides
	}
	if err := rules.Validate(); err != nil {
		return SeasonRules{}, eris.Wrapf(err, "poi: season rules %s", path)
	}
	return rules, nil
}

// Validate checks that every weight lies in [0,1] and every override names
// a known tag.
func (r SeasonRules) Validate() error {
	check := func(what string, w model.SeasonWeights) error {
		if w.Summer < 0 || w.Summer > 1 || w.Winter < 0 || w.Winter > 1 {
			return eris.Errorf("poi: %s weights %+v out of range", what, w)
		}
		return nil
	}
	for c, w := range r.Base {
		if err := check(string(c), w); err != nil {
			return err
		}
	}
	if err := check("fallback", r.Fallback); err != nil {
		return err
	}
	for _, o := range r.Overrides {
		if _, ok := tagValue(model.Tags{}, o.Tag); !ok {
			return eris.Errorf("poi: unknown override tag %q", o.Tag)
		}
		if err := check(o.Tag, o.Weights); err != nil {
			return err
		}
	}
	return nil
}

// Weights returns the season weights for p. The first matching override
// wins over the category weights.
func (r SeasonRules) Weights(p model.POI) model.SeasonWeights {
	w, ok := r.Base[p.Category]
	if !ok {
		w = r.Fallback
	}
	for _, o := range r.Overrides {
		v, _ := tagValue(p.Tags, o.Tag)
		if oneOf(v, o.Values...) {
			w = o.Weights
			break
		}
	}
	return model.SeasonWeights{Summer: round2(w.Summer), Winter: round2(w.Winter)}
}

// ApplySeasonWeights returns p with its season weights set from rules.
func ApplySeasonWeights(p model.POI, rules SeasonRules) model.POI {
	w := rules.Weights(p)
	p.Seasons = &w
	return p
}

// SeasonWeigher adapts rules for Transform.
func SeasonWeigher(rules SeasonRules) func(model.POI) model.POI {
	return func(p model.POI) model.POI { return ApplySeasonWeights(p, rules) }
}

func tagValue(t model.Tags, tag string) (string, bool) {
	switch norm(tag) {
	case "tourism":
		return t.Tourism, true
	case "amenity":
		return t.Amenity, true
	case "shop":
		return t.Shop, true
	case "leisure":
		return t.Leisure, true
	case "historic":
		return t.Historic, true
	default:
		return "", false
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
