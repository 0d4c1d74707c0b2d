package database

import (
	"context"
	"strings"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Categories returns all categories ordered by id
func (r *Repository) Categories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&cats).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query categories")
	}
	return cats, nil
}

// CreateCategory inserts a new category
func (r *Repository) CreateCategory(ctx context.Context, cat *models.Category) error {
	if err := r.db.WithContext(ctx).Create(cat).Error; err != nil {
		return errors.Wrap(err, "failed to insert category")
	}
	return nil
}

// SetAppCategory maps a process pattern to a category, replacing any
// previous mapping for the same pattern.
func (r *Repository) SetAppCategory(ctx context.Context, pattern string, categoryID uint) error {
	var cat models.Category
	if err := r.db.WithContext(ctx).First(&cat, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Errorf("category %d not found", categoryID)
		}
		return errors.Wrap(err, "failed to get category")
	}

	mapping := models.AppCategory{ProcessPattern: strings.ToLower(pattern), CategoryID: categoryID}
	result := r.db.WithContext(ctx).Omit("Category").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "process_pattern"}},
		DoUpdates: clause.AssignmentColumns([]string{"category_id"}),
	}).Create(&mapping)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to set app category")
	}
	return nil
}

// AppCategories returns all pattern mappings with their category.
func (r *Repository) AppCategories(ctx context.Context) ([]models.AppCategory, error) {
	var mappings []models.AppCategory
	if err := r.db.WithContext(ctx).Preload("Category").Find(&mappings).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query app categories")
	}
	return mappings, nil
}

// CategoryResolver loads the mappings once and returns a resolver that
// prefers exact matches over wildcards, falling back to the default
// category name.
func (r *Repository) CategoryResolver(ctx context.Context) (activity.CategoryResolver, error) {
	mappings, err := r.AppCategories(ctx)
	if err != nil {
		return nil, err
	}
	return resolverFor(mappings), nil
}

func resolverFor(mappings []models.AppCategory) activity.CategoryResolver {
	exact := make(map[string]string)
	var wild []models.AppCategory
	for _, m := range mappings {
		if strings.ContainsAny(m.ProcessPattern, "*?") {
			wild = append(wild, m)
		} else {
			exact[strings.ToLower(m.ProcessPattern)] = m.Category.Name
		}
	}
	return func(process string) string {
		if name, ok := exact[strings.ToLower(process)]; ok {
			return name
		}
		for _, m := range wild {
			if activity.MatchPattern(m.ProcessPattern, process) {
				return m.Category.Name
			}
		}
		return models.DefaultCategoryName
	}
}

// CategoryFor returns the category name of a process.
func (r *Repository) CategoryFor(ctx context.Context, process string) (string, error) {
	resolve, err := r.CategoryResolver(ctx)
	if err != nil {
		return "", err
	}
	return resolve(process), nil
}

// processesInCategory lists recorded process names resolving to category.
func (r *Repository) processesInCategory(category string) ([]string, error) {
	resolve, err := r.CategoryResolver(context.Background())
	if err != nil {
		return nil, err
	}
	var names []string
	if err := r.db.Model(&models.Session{}).Distinct().Pluck("process_name", &names).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list processes")
	}
	out := []string{}
	for _, n := range names {
		if strings.EqualFold(resolve(n), category) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Blacklist returns all blacklist entries ordered by id
func (r *Repository) Blacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	var entries []models.BlacklistEntry
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query blacklist")
	}
	return entries, nil
}

// BlacklistPatterns returns just the patterns, for the tracker filter.
func (r *Repository) BlacklistPatterns(ctx context.Context) ([]string, error) {
	entries, err := r.Blacklist(ctx)
	if err != nil {
		return nil, err
	}
	patterns := make([]string, len(entries))
	for i, e := range entries {
		patterns[i] = e.Pattern
	}
	return patterns, nil
}

// AddToBlacklist inserts a pattern; adding an existing pattern is a no-op.
func (r *Repository) AddToBlacklist(ctx context.Context, pattern, description string) error {
	entry := models.BlacklistEntry{Pattern: pattern, Description: description}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pattern"}},
		DoNothing: true,
	}).Create(&entry)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to add blacklist entry")
	}
	return nil
}

// RemoveFromBlacklist deletes a pattern and reports whether it existed.
func (r *Repository) RemoveFromBlacklist(ctx context.Context, pattern string) (bool, error) {
	result := r.db.WithContext(ctx).Where("pattern = ?", pattern).Delete(&models.BlacklistEntry{})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to remove blacklist entry")
	}
	return result.RowsAffected > 0, nil
}
