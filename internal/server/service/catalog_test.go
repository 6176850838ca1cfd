package service

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"appdepot/internal/server/auth"
	"appdepot/internal/server/database"
	"appdepot/internal/server/storage"
)

var (
	adminUser = auth.SessionUser{ID: "u-admin", Username: "admin", Role: auth.RoleAdmin}
	plainUser = auth.SessionUser{ID: "u-user", Username: "user", Role: auth.RoleUser}

	baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

// fixtureApps covers both file types, both publish states, and shared
// categories. Store order is alpha, beta, gamma, hidden.
func fixtureApps() []database.App {
	return []database.App{
		{
			ID: "a-alpha", Title: "Alpha Notes", Description: "Note taking",
			Category: "Productivity", Tags: []string{"notes", "markdown"},
			UploadDate: baseTime, FileType: database.FileTypeURL,
			DownloadURL: "https://example.com/alpha", IsPublished: true,
		},
		{
			ID: "a-beta", Title: "Beta Board", Description: "Kanban boards",
			Category: "Productivity", Tags: []string{"kanban"},
			UploadDate: baseTime.Add(24 * time.Hour), FileType: database.FileTypeFile,
			FilePath: "beta.bin", FileName: "beta-board.zip", IsPublished: true,
		},
		{
			ID: "a-gamma", Title: "Gamma Gallery", Description: "Photo viewer",
			Category: "Media", Tags: []string{"photos"},
			UploadDate: baseTime.Add(48 * time.Hour), FileType: database.FileTypeURL,
			DownloadURL: "https://example.com/gamma", IsPublished: true,
		},
		{
			ID: "a-hidden", Title: "Hidden Draft", Description: "Unreleased tool",
			Category: "Internal", Tags: []string{"draft"},
			UploadDate: baseTime.Add(72 * time.Hour), FileType: database.FileTypeURL,
			DownloadURL: "https://example.com/hidden", IsPublished: false,
		},
	}
}

func newTestCatalog(t *testing.T, apps []database.App) (*Catalog, *storage.FileSystemStore, string) {
	t.Helper()
	dir := t.TempDir()

	db := database.NewStore(filepath.Join(dir, "db.json"), func() (database.Database, error) {
		return database.Database{Apps: apps}, nil
	})
	if err := db.Init(); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}

	uploads := filepath.Join(dir, "uploads")
	files := storage.NewFileSystemStore(uploads)
	if err := files.EnsureDir(); err != nil {
		t.Fatalf("failed to create upload dir: %v", err)
	}

	return NewCatalog(db, files), files, uploads
}

func listIDs(summaries []AppSummary) []string {
	ids := make([]string, len(summaries))
	for i, s := range summaries {
		ids[i] = s.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCatalogList(t *testing.T) {
	t.Run("non-admin never sees unpublished records", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		apps, err := catalog.List(plainUser, ListQuery{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, app := range apps {
			if app.ID == "a-hidden" {
				t.Fatal("unpublished app leaked to non-admin listing")
			}
		}
		if len(apps) != 3 {
			t.Errorf("expected 3 visible apps, got %d", len(apps))
		}
	})

	t.Run("admin sees everything", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		apps, err := catalog.List(adminUser, ListQuery{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(apps) != 4 {
			t.Errorf("expected 4 apps for admin, got %d", len(apps))
		}
	})

	t.Run("search matches title description and tags, case-insensitive", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		cases := map[string][]string{
			"ALPHA":  {"a-alpha"}, // title
			"kanban": {"a-beta"},  // tag
			"photo":  {"a-gamma"}, // description
			"zzz":    {},
		}
		for needle, want := range cases {
			apps, err := catalog.List(plainUser, ListQuery{Search: needle})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !equalIDs(listIDs(apps), want) {
				t.Errorf("search %q: expected %v, got %v", needle, want, listIDs(apps))
			}
		}
	})

	t.Run("category is an exact-match filter", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		apps, err := catalog.List(adminUser, ListQuery{Category: "Productivity", Sort: SortOldest})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !equalIDs(listIDs(apps), []string{"a-alpha", "a-beta"}) {
			t.Errorf("expected productivity apps, got %v", listIDs(apps))
		}

		apps, err = catalog.List(adminUser, ListQuery{Category: "Productiv"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(apps) != 0 {
			t.Error("category prefix must not match")
		}
	})

	t.Run("sort orders", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		cases := map[string][]string{
			SortNewest: {"a-gamma", "a-beta", "a-alpha"},
			SortOldest: {"a-alpha", "a-beta", "a-gamma"},
			SortTitle:  {"a-alpha", "a-beta", "a-gamma"},
			"":         {"a-gamma", "a-beta", "a-alpha"}, // default is newest
			"bogus":    {"a-gamma", "a-beta", "a-alpha"},
		}
		for sortKey, want := range cases {
			apps, err := catalog.List(plainUser, ListQuery{Sort: sortKey})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !equalIDs(listIDs(apps), want) {
				t.Errorf("sort %q: expected %v, got %v", sortKey, want, listIDs(apps))
			}
		}
	})

	t.Run("equal sort keys keep store order", func(t *testing.T) {
		same := baseTime
		catalog, _, _ := newTestCatalog(t, []database.App{
			{ID: "first", Title: "Same", UploadDate: same, FileType: database.FileTypeURL, DownloadURL: "https://x.test/1", IsPublished: true},
			{ID: "second", Title: "Same", UploadDate: same, FileType: database.FileTypeURL, DownloadURL: "https://x.test/2", IsPublished: true},
			{ID: "third", Title: "Same", UploadDate: same, FileType: database.FileTypeURL, DownloadURL: "https://x.test/3", IsPublished: true},
		})

		for _, sortKey := range []string{SortNewest, SortOldest, SortTitle} {
			apps, err := catalog.List(plainUser, ListQuery{Sort: sortKey})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !equalIDs(listIDs(apps), []string{"first", "second", "third"}) {
				t.Errorf("sort %q is not stable: got %v", sortKey, listIDs(apps))
			}
		}
	})

	t.Run("file-type records get the internal download endpoint", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		apps, err := catalog.List(plainUser, ListQuery{Sort: SortOldest})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, app := range apps {
			switch app.ID {
			case "a-beta":
				if app.DownloadURL != "/api/apps/a-beta/download" {
					t.Errorf("expected synthesized download URL, got %q", app.DownloadURL)
				}
			case "a-alpha":
				if app.DownloadURL != "https://example.com/alpha" {
					t.Errorf("expected stored URL, got %q", app.DownloadURL)
				}
			}
		}
	})
}

func TestCatalogCategories(t *testing.T) {
	t.Run("distinct categories among visible apps", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		categories, err := catalog.Categories(plainUser)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !equalIDs(categories, []string{"Productivity", "Media"}) {
			t.Errorf("expected visible categories only, got %v", categories)
		}
	})

	t.Run("admin sees categories of unpublished apps", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		categories, err := catalog.Categories(adminUser)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !equalIDs(categories, []string{"Productivity", "Media", "Internal"}) {
			t.Errorf("expected all categories, got %v", categories)
		}
	})
}

func TestCatalogGet(t *testing.T) {
	t.Run("successful fetch increments views by one", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		app, _, err := catalog.Get(plainUser, "a-alpha")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if app.Views != 1 {
			t.Errorf("expected 1 view, got %d", app.Views)
		}

		app, _, err = catalog.Get(plainUser, "a-alpha")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if app.Views != 2 {
			t.Errorf("expected 2 views, got %d", app.Views)
		}
	})

	t.Run("hidden record is not found for non-admin and views stay put", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		if _, _, err := catalog.Get(plainUser, "a-hidden"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}

		app, _, err := catalog.Get(adminUser, "a-hidden")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if app.Views != 1 {
			t.Errorf("failed fetch must not increment views: got %d", app.Views)
		}
	})

	t.Run("missing record is not found", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		if _, _, err := catalog.Get(adminUser, "no-such-id"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("related apps share the category and exclude self", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		_, related, err := catalog.Get(plainUser, "a-alpha")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !equalIDs(listIDs(related), []string{"a-beta"}) {
			t.Errorf("expected related [a-beta], got %v", listIDs(related))
		}
	})

	t.Run("related is capped at three", func(t *testing.T) {
		apps := fixtureApps()
		for _, id := range []string{"r1", "r2", "r3", "r4"} {
			apps = append(apps, database.App{
				ID: id, Title: id, Category: "Productivity",
				UploadDate: baseTime, FileType: database.FileTypeURL,
				DownloadURL: "https://x.test/" + id, IsPublished: true,
			})
		}
		catalog, _, _ := newTestCatalog(t, apps)

		_, related, err := catalog.Get(plainUser, "a-alpha")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(related) != 3 {
			t.Errorf("expected 3 related apps, got %d", len(related))
		}
	})

	t.Run("unpublished related apps are hidden from non-admins", func(t *testing.T) {
		apps := fixtureApps()
		apps = append(apps, database.App{
			ID: "a-draft", Title: "Draft Productivity", Category: "Productivity",
			UploadDate: baseTime, FileType: database.FileTypeURL,
			DownloadURL: "https://x.test/draft", IsPublished: false,
		})
		catalog, _, _ := newTestCatalog(t, apps)

		_, related, err := catalog.Get(plainUser, "a-alpha")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, r := range related {
			if r.ID == "a-draft" {
				t.Fatal("unpublished app leaked into related list")
			}
		}
	})
}

func TestCatalogCreate(t *testing.T) {
	t.Run("url-type record", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, nil)

		app, err := catalog.Create(AppInput{
			Title:       "New App",
			Description: "Fresh",
			Version:     "0.1.0",
			Category:    "Tools",
			Tags:        " cli , go ,,",
			DownloadURL: "https://x.test/new",
			IsPublished: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if app.ID == "" {
			t.Error("expected server-assigned id")
		}
		if app.DownloadURL != "https://x.test/new" {
			t.Errorf("expected stored URL, got %q", app.DownloadURL)
		}
		if !equalIDs(app.Tags, []string{"cli", "go"}) {
			t.Errorf("expected trimmed tags, got %v", app.Tags)
		}
		if app.Views != 0 {
			t.Errorf("new app should start at 0 views, got %d", app.Views)
		}
	})

	t.Run("file payload wins over downloadUrl", func(t *testing.T) {
		catalog, _, uploads := newTestCatalog(t, nil)

		body := base64.StdEncoding.EncodeToString([]byte("binary content"))
		app, err := catalog.Create(AppInput{
			Title:       "Packaged",
			DownloadURL: "https://x.test/ignored",
			File: &FilePayload{
				Name:   "My App (v1).zip",
				Base64: "data:application/zip;base64," + body,
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if app.DownloadURL != "/api/apps/"+app.ID+"/download" {
			t.Errorf("expected internal download endpoint, got %q", app.DownloadURL)
		}

		entries, err := os.ReadDir(uploads)
		if err != nil {
			t.Fatalf("failed to read upload dir: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 stored file, got %d", len(entries))
		}
		content, err := os.ReadFile(filepath.Join(uploads, entries[0].Name()))
		if err != nil {
			t.Fatalf("failed to read stored file: %v", err)
		}
		if string(content) != "binary content" {
			t.Errorf("stored content mismatch: %q", content)
		}
	})

	t.Run("malformed payload falls back to url mode", func(t *testing.T) {
		catalog, _, uploads := newTestCatalog(t, nil)

		app, err := catalog.Create(AppInput{
			Title:       "Fallback",
			DownloadURL: "https://x.test/fallback",
			File:        &FilePayload{Name: "x.bin", Base64: "not a data url"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if app.DownloadURL != "https://x.test/fallback" {
			t.Errorf("expected URL fallback, got %q", app.DownloadURL)
		}

		entries, _ := os.ReadDir(uploads)
		if len(entries) != 0 {
			t.Errorf("no file should be stored, found %d", len(entries))
		}
	})
}

func TestCatalogUpdate(t *testing.T) {
	t.Run("updates editable fields", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		app, err := catalog.Update("a-alpha", AppInput{
			Title:       "Alpha Renamed",
			Description: "Still notes",
			Version:     "2.0.0",
			Category:    "Productivity",
			Tags:        "notes",
			DownloadURL: "https://example.com/alpha-2",
			IsPublished: false,
			Featured:    true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if app.Title != "Alpha Renamed" || app.Version != "2.0.0" {
			t.Errorf("fields not updated: %+v", app)
		}
		if app.IsPublished || !app.Featured {
			t.Errorf("boolean fields not updated: %+v", app)
		}
		if app.DownloadURL != "https://example.com/alpha-2" {
			t.Errorf("download URL not updated: %q", app.DownloadURL)
		}
	})

	t.Run("missing record is not found", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		if _, err := catalog.Update("no-such-id", AppInput{Title: "X"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("new file payload replaces old backing file", func(t *testing.T) {
		catalog, files, uploads := newTestCatalog(t, fixtureApps())

		if err := os.WriteFile(filepath.Join(uploads, "beta.bin"), []byte("old"), 0644); err != nil {
			t.Fatalf("failed to write fixture file: %v", err)
		}

		body := base64.StdEncoding.EncodeToString([]byte("new bytes"))
		app, err := catalog.Update("a-beta", AppInput{
			Title: "Beta Board",
			File:  &FilePayload{Name: "beta-v2.zip", Base64: "data:application/zip;base64," + body},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if app.DownloadURL != "/api/apps/a-beta/download" {
			t.Errorf("expected internal download endpoint, got %q", app.DownloadURL)
		}
		if _, err := files.Path("beta.bin"); err == nil {
			t.Error("old backing file should have been removed")
		}
	})

	t.Run("downloadUrl switches a file record to url mode", func(t *testing.T) {
		catalog, files, uploads := newTestCatalog(t, fixtureApps())

		if err := os.WriteFile(filepath.Join(uploads, "beta.bin"), []byte("old"), 0644); err != nil {
			t.Fatalf("failed to write fixture file: %v", err)
		}

		app, err := catalog.Update("a-beta", AppInput{
			Title:       "Beta Board",
			DownloadURL: "https://example.com/beta-hosted",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if app.DownloadURL != "https://example.com/beta-hosted" {
			t.Errorf("expected new URL, got %q", app.DownloadURL)
		}
		if _, err := files.Path("beta.bin"); err == nil {
			t.Error("old backing file should have been removed")
		}
	})
}

func TestCatalogDelete(t *testing.T) {
	t.Run("removes record and backing file", func(t *testing.T) {
		catalog, files, uploads := newTestCatalog(t, fixtureApps())

		if err := os.WriteFile(filepath.Join(uploads, "beta.bin"), []byte("data"), 0644); err != nil {
			t.Fatalf("failed to write fixture file: %v", err)
		}

		if err := catalog.Delete("a-beta"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, _, err := catalog.Get(adminUser, "a-beta"); !errors.Is(err, ErrNotFound) {
			t.Error("deleted app should be gone")
		}
		if _, err := files.Path("beta.bin"); err == nil {
			t.Error("backing file should have been removed")
		}
	})

	t.Run("missing record is not found", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		if err := catalog.Delete("no-such-id"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestCatalogResolveDownload(t *testing.T) {
	t.Run("url-type resolves to a redirect", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		res, err := catalog.ResolveDownload(plainUser, "a-alpha")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.RedirectURL != "https://example.com/alpha" {
			t.Errorf("expected redirect URL, got %+v", res)
		}
	})

	t.Run("file-type resolves to the stored path and display name", func(t *testing.T) {
		catalog, _, uploads := newTestCatalog(t, fixtureApps())

		if err := os.WriteFile(filepath.Join(uploads, "beta.bin"), []byte("data"), 0644); err != nil {
			t.Fatalf("failed to write fixture file: %v", err)
		}

		res, err := catalog.ResolveDownload(plainUser, "a-beta")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.FilePath != filepath.Join(uploads, "beta.bin") {
			t.Errorf("unexpected file path: %q", res.FilePath)
		}
		if res.FileName != "beta-board.zip" {
			t.Errorf("expected display filename, got %q", res.FileName)
		}
	})

	t.Run("missing backing file is ErrFileMissing", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		if _, err := catalog.ResolveDownload(plainUser, "a-beta"); !errors.Is(err, ErrFileMissing) {
			t.Fatalf("expected ErrFileMissing, got: %v", err)
		}
	})

	t.Run("hidden record is not found for non-admin", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		if _, err := catalog.ResolveDownload(plainUser, "a-hidden"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}

		res, err := catalog.ResolveDownload(adminUser, "a-hidden")
		if err != nil {
			t.Fatalf("admin should resolve hidden app: %v", err)
		}
		if res.RedirectURL != "https://example.com/hidden" {
			t.Errorf("unexpected resolution: %+v", res)
		}
	})

	t.Run("download does not touch the view counter", func(t *testing.T) {
		catalog, _, _ := newTestCatalog(t, fixtureApps())

		if _, err := catalog.ResolveDownload(plainUser, "a-alpha"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		app, _, err := catalog.Get(plainUser, "a-alpha")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if app.Views != 1 {
			t.Errorf("expected 1 view (from Get only), got %d", app.Views)
		}
	})
}
