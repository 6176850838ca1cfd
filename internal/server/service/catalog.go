package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"appdepot/internal/server/auth"
	"appdepot/internal/server/database"
	"appdepot/internal/server/storage"
)

// Sentinel errors for the service layer.
var (
	ErrNotFound    = errors.New("app not found")
	ErrFileMissing = errors.New("backing file missing from storage")
)

const relatedLimit = 3

// Sort orders accepted by List. Anything else falls back to newest-first.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortTitle  = "title"
)

// AppSummary is the client-visible projection of an app record. For file-type
// records DownloadURL points at the authenticated download endpoint; the
// storage path itself is never exposed.
type AppSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	UploadDate  time.Time `json:"uploadDate"`
	IsPublished bool      `json:"isPublished"`
	Featured    bool      `json:"featured"`
	Views       int64     `json:"views"`
	DownloadURL string    `json:"downloadUrl"`
}

// FilePayload is an inline-encoded upload: a display name plus a data URL
// ("data:<media type>;base64,<body>").
type FilePayload struct {
	Name   string `json:"name"`
	Base64 string `json:"base64"`
}

// AppInput carries the admin-supplied fields for create and update. Tags
// arrive as a comma-separated string. The boolean fields are plain bools, so
// a request carrying anything non-boolean fails JSON binding outright instead
// of being coerced.
type AppInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Category    string       `json:"category"`
	Tags        string       `json:"tags"`
	DownloadURL string       `json:"downloadUrl"`
	IsPublished bool         `json:"isPublished"`
	Featured    bool         `json:"featured"`
	File        *FilePayload `json:"file,omitempty"`
}

// ListQuery holds the optional listing parameters.
type ListQuery struct {
	Search   string
	Category string
	Sort     string
}

// DownloadResolution tells the handler how to answer a download request:
// redirect to RedirectURL, or stream FilePath as an attachment named FileName.
type DownloadResolution struct {
	RedirectURL string
	FilePath    string
	FileName    string
}

// Catalog contains the business logic for browsing and managing app records.
type Catalog struct {
	db    *database.Store
	files storage.Store
}

// NewCatalog creates a catalog service over the given stores.
func NewCatalog(db *database.Store, files storage.Store) *Catalog {
	return &Catalog{db: db, files: files}
}

// visibleApps applies role-based visibility: admins see everything,
// everyone else sees only published records.
func visibleApps(user auth.SessionUser, apps []database.App) []database.App {
	if user.IsAdmin() {
		return apps
	}
	visible := make([]database.App, 0, len(apps))
	for _, app := range apps {
		if app.IsPublished {
			visible = append(visible, app)
		}
	}
	return visible
}

// List filters, searches, and sorts the records visible to the user.
func (c *Catalog) List(user auth.SessionUser, q ListQuery) ([]AppSummary, error) {
	db, err := c.db.Load()
	if err != nil {
		return nil, err
	}

	apps := visibleApps(user, db.Apps)

	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		matched := apps[:0:0]
		for _, app := range apps {
			haystack := strings.ToLower(
				app.Title + " " + app.Description + " " + strings.Join(app.Tags, " "))
			if strings.Contains(haystack, needle) {
				matched = append(matched, app)
			}
		}
		apps = matched
	}

	if q.Category != "" {
		matched := apps[:0:0]
		for _, app := range apps {
			if app.Category == q.Category {
				matched = append(matched, app)
			}
		}
		apps = matched
	}

	// Records with equal sort keys keep their store order.
	switch q.Sort {
	case SortOldest:
		sort.SliceStable(apps, func(i, j int) bool {
			return apps[i].UploadDate.Before(apps[j].UploadDate)
		})
	case SortTitle:
		sort.SliceStable(apps, func(i, j int) bool {
			return apps[i].Title < apps[j].Title
		})
	default:
		sort.SliceStable(apps, func(i, j int) bool {
			return apps[i].UploadDate.After(apps[j].UploadDate)
		})
	}

	summaries := make([]AppSummary, 0, len(apps))
	for _, app := range apps {
		summaries = append(summaries, toSummary(app))
	}
	return summaries, nil
}

// Categories returns the distinct non-empty category names among the records
// visible to the user, in first-seen store order.
func (c *Catalog) Categories(user auth.SessionUser) ([]string, error) {
	db, err := c.db.Load()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	categories := []string{}
	for _, app := range visibleApps(user, db.Apps) {
		if app.Category == "" || seen[app.Category] {
			continue
		}
		seen[app.Category] = true
		categories = append(categories, app.Category)
	}
	return categories, nil
}

// Get fetches a single record with up to three related apps from the same
// category. A successful fetch increments the view counter; a hidden or
// missing record returns ErrNotFound without side effects.
func (c *Catalog) Get(user auth.SessionUser, id string) (AppSummary, []AppSummary, error) {
	var app database.App
	var related []AppSummary

	err := c.db.Mutate(func(db *database.Database) error {
		i := db.FindApp(id)
		if i < 0 || (!db.Apps[i].IsPublished && !user.IsAdmin()) {
			return ErrNotFound
		}
		db.Apps[i].Views++
		app = db.Apps[i]

		related = related[:0]
		for _, other := range db.Apps {
			if other.ID == app.ID || other.Category != app.Category {
				continue
			}
			if !other.IsPublished && !user.IsAdmin() {
				continue
			}
			related = append(related, toSummary(other))
			if len(related) == relatedLimit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return AppSummary{}, nil, err
	}
	return toSummary(app), related, nil
}

// Create ingests the optional file payload and appends a new record. With a
// usable payload the record is file-type; otherwise it falls back to URL mode
// with whatever downloadUrl was supplied.
func (c *Catalog) Create(in AppInput) (AppSummary, error) {
	stored, err := c.ingest(in.File)
	if err != nil {
		return AppSummary{}, err
	}

	app := database.App{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Version:     in.Version,
		Category:    in.Category,
		Tags:        splitTags(in.Tags),
		UploadDate:  time.Now().UTC(),
		IsPublished: in.IsPublished,
		Featured:    in.Featured,
		FileType:    database.FileTypeURL,
		DownloadURL: in.DownloadURL,
	}
	if stored != nil {
		app.FileType = database.FileTypeFile
		app.FilePath = stored.Name
		app.FileName = stored.DisplayName
		app.DownloadURL = ""
	}

	err = c.db.Mutate(func(db *database.Database) error {
		db.Apps = append(db.Apps, app)
		return nil
	})
	if err != nil {
		if stored != nil {
			c.files.Delete(stored.Name)
		}
		return AppSummary{}, err
	}

	slog.Info("app created", "id", app.ID, "title", app.Title, "file_type", app.FileType)
	return toSummary(app), nil
}

// Update replaces the editable fields of an existing record. A new file
// payload switches the record to file mode and discards the old backing
// file; otherwise a non-empty downloadUrl switches it to URL mode.
func (c *Catalog) Update(id string, in AppInput) (AppSummary, error) {
	stored, err := c.ingest(in.File)
	if err != nil {
		return AppSummary{}, err
	}

	var updated database.App
	var replacedFile string

	err = c.db.Mutate(func(db *database.Database) error {
		i := db.FindApp(id)
		if i < 0 {
			return ErrNotFound
		}
		app := &db.Apps[i]

		app.Title = in.Title
		app.Description = in.Description
		app.Version = in.Version
		app.Category = in.Category
		app.Tags = splitTags(in.Tags)
		app.IsPublished = in.IsPublished
		app.Featured = in.Featured

		switch {
		case stored != nil:
			replacedFile = app.FilePath
			app.FileType = database.FileTypeFile
			app.FilePath = stored.Name
			app.FileName = stored.DisplayName
			app.DownloadURL = ""
		case in.DownloadURL != "":
			replacedFile = app.FilePath
			app.FileType = database.FileTypeURL
			app.DownloadURL = in.DownloadURL
			app.FilePath = ""
			app.FileName = ""
		}

		updated = *app
		return nil
	})
	if err != nil {
		if stored != nil {
			c.files.Delete(stored.Name)
		}
		return AppSummary{}, err
	}

	if replacedFile != "" && replacedFile != updated.FilePath {
		if err := c.files.Delete(replacedFile); err != nil {
			slog.Error("failed to delete replaced file", "name", replacedFile, "error", err)
		}
	}

	slog.Info("app updated", "id", id, "file_type", updated.FileType)
	return toSummary(updated), nil
}

// Delete removes a record and, best-effort, its backing file.
func (c *Catalog) Delete(id string) error {
	var removed database.App

	err := c.db.Mutate(func(db *database.Database) error {
		i := db.FindApp(id)
		if i < 0 {
			return ErrNotFound
		}
		removed = db.Apps[i]
		db.Apps = append(db.Apps[:i], db.Apps[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	if removed.FilePath != "" {
		if err := c.files.Delete(removed.FilePath); err != nil {
			slog.Error("failed to delete backing file", "name", removed.FilePath, "error", err)
		}
	}

	slog.Info("app deleted", "id", id, "title", removed.Title)
	return nil
}

// ResolveDownload decides how a download request is answered. Hidden and
// missing records, and file-type records whose backing file is gone from
// storage, resolve to not-found.
func (c *Catalog) ResolveDownload(user auth.SessionUser, id string) (DownloadResolution, error) {
	db, err := c.db.Load()
	if err != nil {
		return DownloadResolution{}, err
	}

	i := db.FindApp(id)
	if i < 0 || (!db.Apps[i].IsPublished && !user.IsAdmin()) {
		return DownloadResolution{}, ErrNotFound
	}
	app := db.Apps[i]

	if app.FileType == database.FileTypeURL {
		return DownloadResolution{RedirectURL: app.DownloadURL}, nil
	}

	if app.FilePath == "" {
		return DownloadResolution{}, ErrFileMissing
	}
	path, err := c.files.Path(app.FilePath)
	if err != nil {
		return DownloadResolution{}, fmt.Errorf("%w: %v", ErrFileMissing, err)
	}

	name := app.FileName
	if name == "" {
		name = "download.bin"
	}
	return DownloadResolution{FilePath: path, FileName: name}, nil
}

func toSummary(app database.App) AppSummary {
	downloadURL := app.DownloadURL
	if app.FileType == database.FileTypeFile {
		downloadURL = "/api/apps/" + app.ID + "/download"
	}

	tags := app.Tags
	if tags == nil {
		tags = []string{}
	}

	return AppSummary{
		ID:          app.ID,
		Title:       app.Title,
		Description: app.Description,
		Version:     app.Version,
		Category:    app.Category,
		Tags:        tags,
		UploadDate:  app.UploadDate,
		IsPublished: app.IsPublished,
		Featured:    app.Featured,
		Views:       app.Views,
		DownloadURL: downloadURL,
	}
}

// splitTags turns a comma-separated string into trimmed, non-empty tags.
func splitTags(raw string) []string {
	tags := []string{}
	for _, tag := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(tag); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
