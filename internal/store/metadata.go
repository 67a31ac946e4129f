package store

import (
	"path/filepath"
	"strings"

	"github.com/hyperjump/kondate/internal/models"
)

// categoryLabels maps directory name keywords to category labels.
// Order matters: the first key found among the path segments wins.
var categoryLabels = []struct {
	key   string
	label string
}{
	{"meat_dish", "meat"},
	{"vegetable_dish", "vegetable"},
	{"soup", "soup"},
	{"dessert", "dessert"},
	{"breakfast", "breakfast"},
	{"staple", "staple"},
	{"aquatic", "aquatic"},
	{"condiment", "condiment"},
	{"drink", "drink"},
}

const categoryOther = "other"

// difficultyTiers are star markers ordered highest first so that the highest
// tier present in the content wins.
var difficultyTiers = []struct {
	marker string
	label  string
}{
	{"★★★★★", "very_hard"},
	{"★★★★", "hard"},
	{"★★★", "medium"},
	{"★★", "easy"},
	{"★", "very_easy"},
}

const difficultyUnknown = "unknown"

// enrichMetadata derives the fixed metadata for a parent document from its
// source path and content. Derived once at load time; immutable afterwards.
func enrichMetadata(path, content string) models.Metadata {
	return models.Metadata{
		Source:     path,
		Category:   categoryFromPath(path),
		DishName:   dishNameFromPath(path),
		Difficulty: difficultyFromContent(content),
		DocType:    models.DocTypeParent,
	}
}

func categoryFromPath(path string) string {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for _, entry := range categoryLabels {
		for _, segment := range segments {
			if segment == entry.key {
				return entry.label
			}
		}
	}
	return categoryOther
}

func dishNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func difficultyFromContent(content string) string {
	for _, tier := range difficultyTiers {
		if strings.Contains(content, tier.marker) {
			return tier.label
		}
	}
	return difficultyUnknown
}
