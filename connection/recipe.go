package connection

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Recipe is the subset of an ingestion recipe the service needs: the source
// block carrying the platform type and its connection config.
type Recipe struct {
	Source RecipeSource `yaml:"source"`
}

type RecipeSource struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// secretRefPattern matches ${SECRET_NAME} references inside a recipe.
var secretRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// SecretStore resolves secret names to values. Stores are consulted in
// order; the first one that knows a name wins.
type SecretStore interface {
	GetSecretValues(ctx context.Context, names []string) (map[string]string, error)
}

// EnvSecretStore resolves secrets from process environment variables.
type EnvSecretStore struct{}

func (EnvSecretStore) GetSecretValues(_ context.Context, names []string) (map[string]string, error) {
	values := make(map[string]string)
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			values[name] = v
		}
	}
	return values, nil
}

// ResolveSecrets substitutes every ${NAME} reference in the raw recipe
// using the given stores. Unresolvable references are left in place.
func ResolveSecrets(ctx context.Context, raw string, stores []SecretStore) (string, error) {
	matches := secretRefPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return raw, nil
	}
	nameSet := make(map[string]struct{})
	var names []string
	for _, m := range matches {
		if _, ok := nameSet[m[1]]; !ok {
			nameSet[m[1]] = struct{}{}
			names = append(names, m[1])
		}
	}

	resolved := make(map[string]string, len(names))
	for _, store := range stores {
		var missing []string
		for _, name := range names {
			if _, ok := resolved[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) == 0 {
			break
		}
		values, err := store.GetSecretValues(ctx, missing)
		if err != nil {
			return "", fmt.Errorf("resolve recipe secrets: %w", err)
		}
		for name, value := range values {
			resolved[name] = value
		}
	}

	return secretRefPattern.ReplaceAllStringFunc(raw, func(ref string) string {
		name := secretRefPattern.FindStringSubmatch(ref)[1]
		if value, ok := resolved[name]; ok {
			return value
		}
		return ref
	}), nil
}

// ParseRecipe parses a resolved recipe document.
func ParseRecipe(raw string) (*Recipe, error) {
	var recipe Recipe
	if err := yaml.Unmarshal([]byte(raw), &recipe); err != nil {
		return nil, fmt.Errorf("parse recipe: %w", err)
	}
	if recipe.Source.Type == "" {
		return nil, fmt.Errorf("recipe without source type")
	}
	return &recipe, nil
}
