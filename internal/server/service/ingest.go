package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// StoredUpload describes an ingested file: the unique stored name inside the
// managed directory and the display filename offered on download.
type StoredUpload struct {
	Name        string
	DisplayName string
}

// ingest decodes an inline file payload and persists it to storage. An absent
// or malformed payload is skipped (nil, nil), which makes the caller fall
// back to URL mode. Storage write failures are real errors.
func (c *Catalog) ingest(payload *FilePayload) (*StoredUpload, error) {
	if payload == nil {
		return nil, nil
	}

	data, ok := decodeDataURL(payload.Base64)
	if !ok {
		slog.Warn("skipping malformed file payload", "name", payload.Name)
		return nil, nil
	}

	safeName := sanitizeFilename(payload.Name)
	storedName := uuid.NewString() + "-" + safeName

	if _, err := c.files.Save(storedName, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	displayName := payload.Name
	if displayName == "" {
		displayName = safeName
	}

	slog.Info("file ingested", "stored_name", storedName, "size", len(data))
	return &StoredUpload{Name: storedName, DisplayName: displayName}, nil
}

// decodeDataURL extracts the body of a "data:<media type>;base64,<body>"
// payload. Anything not matching that shape reports !ok.
func decodeDataURL(s string) ([]byte, bool) {
	rest, found := strings.CutPrefix(s, "data:")
	if !found {
		return nil, false
	}
	meta, body, found := strings.Cut(rest, ",")
	if !found {
		return nil, false
	}
	if !strings.HasSuffix(meta, ";base64") || len(body) == 0 {
		return nil, false
	}

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, false
	}
	return data, true
}

// sanitizeFilename reduces a client-supplied name to a safe character
// allow-list: letters, digits, dot, underscore, and hyphen.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "upload.bin"
	}
	return b.String()
}
