package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/thebtf/placefeed/pkg/models"
)

// runMigrations creates the placefeed schema using gormigrate.
// Production databases are managed elsewhere; this exists for local
// development and integration tests.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&profileRecord{}, &placeRecord{}, &postRecord{}, &followRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(models.FollowsTable, models.PostsTable, models.PlacesTable, models.ProfilesTable)
			},
		},

		// Migration 002: Read-path indexes
		{
			ID: "002_read_path_indexes",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					// profiles_get by username is case-insensitive.
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_username_lower ON profiles (lower(username))`,
					`CREATE INDEX IF NOT EXISTS idx_places_name ON places (name)`,
					`CREATE INDEX IF NOT EXISTS idx_posts_created ON posts (created_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_posts_author_created ON posts (author_id, created_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_posts_place_created ON posts (place_id, created_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_follows_follower_status ON follows (follower_id, status, created_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_follows_followee_status ON follows (followee_id, status, created_at DESC)`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP INDEX IF EXISTS idx_follows_followee_status",
					"DROP INDEX IF EXISTS idx_follows_follower_status",
					"DROP INDEX IF EXISTS idx_posts_place_created",
					"DROP INDEX IF EXISTS idx_posts_author_created",
					"DROP INDEX IF EXISTS idx_posts_created",
					"DROP INDEX IF EXISTS idx_places_name",
					"DROP INDEX IF EXISTS idx_profiles_username_lower",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
	})

	return m.Migrate()
}
