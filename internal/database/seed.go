package database

import (
	"log/slog"

	"github.com/appforge/appforge/internal/auth"
	"github.com/appforge/appforge/internal/models"
	"gorm.io/gorm"
)

// SeedDevData populates the database with development test data.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB) error {
	var existing models.User
	result := db.Where("email = ?", "dev@appforge.local").First(&existing)
	if result.Error == nil {
		slog.Info("seed data already exists, skipping")
		return nil
	}

	hash, err := auth.HashPassword("devpassword123")
	if err != nil {
		return err
	}

	user := models.User{
		Email:          "dev@appforge.local",
		HashedPassword: hash,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}

	job := models.GenerationJob{
		Prompt:  "Build a todo list app with user accounts",
		Status:  models.JobStatusPending,
		OwnerID: user.ID,
	}
	if err := db.Create(&job).Error; err != nil {
		return err
	}

	slog.Info("seeded development data", "user", user.Email, "job_id", job.ID)
	return nil
}
