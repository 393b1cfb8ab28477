package helper

import (
	"fmt"

	"cinema_pos/model"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// GenerateUniqueTheaterSlug slugs name and suffixes -1, -2... until no
// theater holds it. Guests reach a theater's menu through this slug.
func GenerateUniqueTheaterSlug(tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "theater"
	}

	var taken []string
	if err := tx.Model(&model.Theater{}).
		Where("slug = ? OR slug LIKE ?", base, base+"-%").
		Pluck("slug", &taken).Error; err != nil {
		return "", err
	}
	used := make(map[string]bool, len(taken))
	for _, s := range taken {
		used[s] = true
	}

	result := base
	for i := 1; used[result]; i++ {
		result = fmt.Sprintf("%s-%d", base, i)
	}
	return result, nil
}
