package database

import (
	"github.com/ownmon/ownmon/internal/logging"
	"github.com/ownmon/ownmon/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var defaultBlacklist = []models.BlacklistEntry{
	{Pattern: "ownmon", Description: "Self (monitoring app)"},
}

var presetCategories = []models.Category{
	{Name: models.DefaultCategoryName, Color: "#9CA3AF", Icon: "📁"},
	{Name: "Work", Color: "#3B82F6", Icon: "💼"},
	{Name: "Entertainment", Color: "#EF4444", Icon: "🎮"},
	{Name: "Communication", Color: "#10B981", Icon: "💬"},
	{Name: "Browser", Color: "#F59E0B", Icon: "🌐"},
	{Name: "System", Color: "#6B7280", Icon: "⚙️"},
}

var presetMappings = map[string]string{
	"code":            "Work",
	"codium":          "Work",
	"jetbrains-*":     "Work",
	"idea*":           "Work",
	"goland*":         "Work",
	"nvim":            "Work",
	"alacritty":       "Work",
	"kitty":           "Work",
	"gnome-terminal*": "Work",

	"spotify":   "Entertainment",
	"vlc":       "Entertainment",
	"mpv":       "Entertainment",
	"steam*":    "Entertainment",
	"*youtube*": "Entertainment",

	"slack":       "Communication",
	"discord":     "Communication",
	"teams*":      "Communication",
	"telegram*":   "Communication",
	"signal*":     "Communication",
	"thunderbird": "Communication",

	"firefox*":       "Browser",
	"chromium*":      "Browser",
	"google-chrome*": "Browser",
	"brave*":         "Browser",

	"nautilus":             "System",
	"gnome-control-center": "System",
	"systemsettings":       "System",
}

// seed inserts default blacklist entries and preset categories into
// empty tables. Existing user edits are never overwritten.
func seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.BlacklistEntry{}).Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to count blacklist")
		}
		if count == 0 {
			entries := append([]models.BlacklistEntry(nil), defaultBlacklist...)
			if err := tx.Create(&entries).Error; err != nil {
				return errors.Wrap(err, "failed to seed blacklist")
			}
			logging.Logger.Info("Added default blacklist entries", "count", len(entries))
		}

		if err := tx.Model(&models.Category{}).Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to count categories")
		}
		if count > 0 {
			return nil
		}

		cats := append([]models.Category(nil), presetCategories...)
		if err := tx.Create(&cats).Error; err != nil {
			return errors.Wrap(err, "failed to seed categories")
		}
		ids := make(map[string]uint, len(cats))
		for _, c := range cats {
			ids[c.Name] = c.ID
		}

		mappings := make([]models.AppCategory, 0, len(presetMappings))
		for pattern, name := range presetMappings {
			mappings = append(mappings, models.AppCategory{ProcessPattern: pattern, CategoryID: ids[name]})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit("Category").Create(&mappings).Error; err != nil {
			return errors.Wrap(err, "failed to seed app categories")
		}
		logging.Logger.Info("Added preset categories", "categories", len(cats), "mappings", len(mappings))
		return nil
	})
}
