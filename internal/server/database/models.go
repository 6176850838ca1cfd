package database

import "time"

// File type discriminator for an app's download resolution.
const (
	FileTypeURL  = "url"
	FileTypeFile = "file"
)

// User is a catalog account. Users are created only through seed data; there
// is no registration endpoint.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash"`
}

// App is a catalog entry. Exactly one of DownloadURL or (FilePath, FileName)
// is populated, matching FileType. FilePath is the stored name inside the
// managed upload directory, never exposed to clients.
type App struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	UploadDate  time.Time `json:"uploadDate"`
	FileType    string    `json:"fileType"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	FilePath    string    `json:"filePath,omitempty"`
	FileName    string    `json:"fileName,omitempty"`
	IsPublished bool      `json:"isPublished"`
	Featured    bool      `json:"featured"`
	Views       int64     `json:"views"`
}

// Database is the full persisted snapshot. It is always read and written as
// one document.
type Database struct {
	Users []User `json:"users"`
	Apps  []App  `json:"apps"`
}

// FindApp returns the index of the app with the given id, or -1.
func (d *Database) FindApp(id string) int {
	for i := range d.Apps {
		if d.Apps[i].ID == id {
			return i
		}
	}
	return -1
}

// FindUserByName returns the user with the given username, or nil.
func (d *Database) FindUserByName(username string) *User {
	for i := range d.Users {
		if d.Users[i].Username == username {
			return &d.Users[i]
		}
	}
	return nil
}
