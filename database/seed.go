package database

import (
	"context"
	"embed"
	"fmt"
	"log"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"service-marketplace-server/models"
)

//go:embed seeds/categories.yaml
var seedFS embed.FS

type categorySeed struct {
	Categories []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"categories"`
}

// LoadSeedCategories parses the embedded default category list
func LoadSeedCategories() ([]models.ServiceCategory, error) {
	raw, err := seedFS.ReadFile("seeds/categories.yaml")
	if err != nil {
		return nil, fmt.Errorf("read category seed: %w", err)
	}
	var seed categorySeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse category seed: %w", err)
	}

	categories := make([]models.ServiceCategory, 0, len(seed.Categories))
	for _, c := range seed.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		categories = append(categories, models.ServiceCategory{Name: name, Description: strings.TrimSpace(c.Description)})
	}
	return categories, nil
}

// SeedCategories inserts missing default categories and leaves existing ones untouched
func SeedCategories(ctx context.Context, db *gorm.DB) (int, error) {
	categories, err := LoadSeedCategories()
	if err != nil {
		return 0, err
	}

	created := 0
	for _, category := range categories {
		c := category
		res := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&c)
		if res.Error != nil {
			return created, fmt.Errorf("seed category %q: %w", c.Name, res.Error)
		}
		if res.RowsAffected > 0 {
			created++
		}
	}
	if created > 0 {
		log.Printf("✅ Seeded %d service categories", created)
	}
	return created, nil
}
