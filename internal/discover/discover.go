// Package discover implements Recipe Discovery (component I): scanning a
// directory tree for "*.edm.toml" recipe files, skipping obvious
// non-recipe clutter, and loading each into a recipe.Recipe.
package discover

import (
	"io/fs"
	"log"
	"path/filepath"
	"strings"

	"github.com/edmhq/edm/internal/recipe"
)

const recipeSuffix = ".edm.toml"

// skipNames are substrings that mark a file as not a recipe carrier even
// though it matches the suffix — e.g. a stray conan/doxygen config
// dropped next to real recipes.
var skipNames = []string{"conan", "doxy"}

// shouldSkip reports whether name should never be treated as a recipe,
// independent of its contents.
func shouldSkip(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range skipNames {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Discover recurses root up to depth levels deep (negative = unbounded,
// 0 = root only) collecting every "*.edm.toml" file, loading each into a
// Recipe. A load failure for one file never aborts discovery — it is
// logged and the file is skipped. Recipes are returned in the tree-walk
// (lexical) order so repeated runs build in the same sequence.
func Discover(root string, depth int) ([]*recipe.Recipe, error) {
	var recipes []*recipe.Recipe
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root || depth < 0 {
				return nil
			}
			rel, rerr := filepath.Rel(root, path)
			if rerr != nil {
				return rerr
			}
			if strings.Count(rel, string(filepath.Separator))+1 > depth {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, recipeSuffix) {
			return nil
		}
		if shouldSkip(name) {
			return nil
		}
		r, loadErr := recipe.Load(path)
		if loadErr != nil {
			log.Printf("discover: skipping %s: %v", path, loadErr)
			return nil
		}
		recipes = append(recipes, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recipes, nil
}
