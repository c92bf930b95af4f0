package gridworld

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"factoryverse.ai/internal/sim/nav"
)

// Catalog is the static content a world is seeded with: recipes, resource
// nodes, wall rectangles and pre-placed entities.
type Catalog struct {
	Recipes   []RecipeSpec   `yaml:"recipes"`
	Resources []ResourceSpec `yaml:"resources"`
	Walls     []WallSpec     `yaml:"walls"`
	Entities  []EntitySpec   `yaml:"entities"`
}

type RecipeSpec struct {
	Name        string         `yaml:"name"`
	Ingredients map[string]int `yaml:"ingredients"`
	Products    map[string]int `yaml:"products"`
	TimeTicks   int            `yaml:"time_ticks"`
}

type ResourceSpec struct {
	Name   string  `yaml:"name"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Item   string  `yaml:"item"`
	Cycles int     `yaml:"cycles"` // 0 = never depletes
	Yield  int     `yaml:"yield"`
}

// WallSpec is an inclusive tile rectangle of solid ground.
type WallSpec struct {
	X0 int `yaml:"x0"`
	Y0 int `yaml:"y0"`
	X1 int `yaml:"x1"`
	Y1 int `yaml:"y1"`
}

type EntitySpec struct {
	Kind string  `yaml:"kind"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
}

func LoadCatalog(path string) (Catalog, error) {
	var c Catalog
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, r := range c.Recipes {
		if r.Name == "" {
			return c, fmt.Errorf("%s: recipe with empty name", path)
		}
		if r.TimeTicks <= 0 {
			return c, fmt.Errorf("%s: recipe %q needs time_ticks > 0", path, r.Name)
		}
	}
	return c, nil
}

// Install seeds the world with a catalog's content. Call before the first
// tick; later installs add on top of existing content.
func (w *World) Install(c Catalog) {
	for _, r := range c.Recipes {
		w.AddRecipe(Recipe{
			Name:        r.Name,
			Ingredients: r.Ingredients,
			Products:    r.Products,
			TimeTicks:   r.TimeTicks,
		})
	}
	for _, wall := range c.Walls {
		for ty := wall.Y0; ty <= wall.Y1; ty++ {
			for tx := wall.X0; tx <= wall.X1; tx++ {
				w.SetSolid(tx, ty, true)
			}
		}
	}
	for _, r := range c.Resources {
		yield := r.Yield
		if yield <= 0 {
			yield = 1
		}
		w.AddResource(r.Name, nav.Pos{X: r.X, Y: r.Y}, r.Item, r.Cycles, yield)
	}
	for _, e := range c.Entities {
		w.AddEntity(e.Kind, nav.Pos{X: e.X, Y: e.Y})
	}
}
