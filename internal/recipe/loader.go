package recipe

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load decodes a single "*.edm.toml" file into a Recipe.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recipe: %w", err)
	}
	var r Recipe
	if _, err := toml.Decode(string(data), &r); err != nil {
		return nil, fmt.Errorf("recipe: %s: %w", path, err)
	}
	r.Path = path
	return &r, nil
}
