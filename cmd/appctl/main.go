// Command appctl is a small admin client for the catalog API.
//
// Usage:
//
//	appctl -addr http://localhost:3000 -user admin -pass admin123 list
//	appctl ... create -title "My Tool" -category Tools -url https://example.com/tool
//	appctl ... create -title "My Tool" -file ./tool.zip -publish
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
)

func main() {
	addr := flag.String("addr", "http://localhost:3000", "server base URL")
	user := flag.String("user", "admin", "username")
	pass := flag.String("pass", "", "password")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: appctl [flags] list|create [create flags]")
		os.Exit(2)
	}

	client := &apiClient{base: *addr, http: &http.Client{
		// Keep url-type download redirects visible instead of following them.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}

	if err := client.login(*user, *pass); err != nil {
		fmt.Fprintf(os.Stderr, "Error: login failed: %v\n", err)
		os.Exit(1)
	}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "list":
		err = runList(client)
	case "create":
		err = runCreate(client, flag.Args()[1:])
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type apiClient struct {
	base string
	http *http.Client
	sid  string
}

func (c *apiClient) login(username, password string) error {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := c.http.Post(c.base+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "sid" {
			c.sid = cookie.Value
			return nil
		}
	}
	return fmt.Errorf("no session cookie in response")
}

func (c *apiClient) do(method, path string, payload any) (map[string]json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: "sid", Value: c.sid})

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var errBody struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &errBody) == nil && errBody.Message != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, errBody.Message)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result, nil
}

type appRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Version     string `json:"version"`
	Category    string `json:"category"`
	IsPublished bool   `json:"isPublished"`
	Views       int64  `json:"views"`
}

func runList(c *apiClient) error {
	result, err := c.do(http.MethodGet, "/api/apps", nil)
	if err != nil {
		return err
	}

	var apps []appRow
	if err := json.Unmarshal(result["apps"], &apps); err != nil {
		return fmt.Errorf("failed to decode app list: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tVERSION\tCATEGORY\tPUBLISHED\tVIEWS")
	for _, app := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%d\n",
			app.ID, app.Title, app.Version, app.Category, app.IsPublished, app.Views)
	}
	return w.Flush()
}

func runCreate(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	title := fs.String("title", "", "app title (required)")
	description := fs.String("description", "", "app description")
	version := fs.String("version", "1.0.0", "app version")
	category := fs.String("category", "", "app category")
	tags := fs.String("tags", "", "comma-separated tags")
	url := fs.String("url", "", "external download URL")
	file := fs.String("file", "", "local file to upload instead of a URL")
	publish := fs.Bool("publish", false, "publish immediately")
	featured := fs.Bool("featured", false, "mark as featured")
	fs.Parse(args)

	if *title == "" {
		return fmt.Errorf("-title is required")
	}
	if *url == "" && *file == "" {
		return fmt.Errorf("one of -url or -file is required")
	}

	payload := map[string]any{
		"title":       *title,
		"description": *description,
		"version":     *version,
		"category":    *category,
		"tags":        *tags,
		"downloadUrl": *url,
		"isPublished": *publish,
		"featured":    *featured,
	}

	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", *file, err)
		}
		mediaType := mime.TypeByExtension(filepath.Ext(*file))
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		payload["file"] = map[string]string{
			"name":   filepath.Base(*file),
			"base64": "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data),
		}
	}

	result, err := c.do(http.MethodPost, "/api/apps", payload)
	if err != nil {
		return err
	}

	var created appRow
	if err := json.Unmarshal(result["app"], &created); err != nil {
		return fmt.Errorf("failed to decode created app: %w", err)
	}
	fmt.Printf("Created %q (id %s)\n", created.Title, created.ID)
	return nil
}
