package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"appdepot/internal/server/auth"
)

// DefaultSeed produces the initial snapshot for a fresh installation: the two
// demo accounts and one published, featured sample app.
func DefaultSeed() (Database, error) {
	adminHash, err := auth.HashPassword("admin123")
	if err != nil {
		return Database{}, fmt.Errorf("failed to hash admin password: %w", err)
	}
	userHash, err := auth.HashPassword("user123")
	if err != nil {
		return Database{}, fmt.Errorf("failed to hash user password: %w", err)
	}

	return Database{
		Users: []User{
			{ID: "u-admin", Username: "admin", Role: auth.RoleAdmin, PasswordHash: adminHash},
			{ID: "u-user", Username: "user", Role: auth.RoleUser, PasswordHash: userHash},
		},
		Apps: []App{
			{
				ID:          uuid.NewString(),
				Title:       "Starter CRM",
				Description: "Prebuilt CRM app starter template.",
				Version:     "1.0.0",
				Category:    "Business",
				Tags:        []string{"crm", "starter"},
				UploadDate:  time.Now().UTC(),
				FileType:    FileTypeURL,
				DownloadURL: "https://example.com/starter-crm",
				IsPublished: true,
				Featured:    true,
				Views:       0,
			},
		},
	}, nil
}
