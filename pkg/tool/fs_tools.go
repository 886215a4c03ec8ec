package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxSearchResults = 20
	maxFetchBytes    = 1024 * 1024
)

// --- Search ---

type SearchRequest struct {
	Query string `json:"query"`
}

type SearchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

func (r *Registry) search(args json.RawMessage) (any, error) {
	var req SearchRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(req.Query))
	results := make([]SearchResult, 0)

	if q == "" {
		entries, err := listDir(r.root.Path())
		if err != nil {
			return nil, fmt.Errorf("failed to list root: %w", err)
		}
		for _, e := range entries {
			if len(results) >= maxSearchResults {
				break
			}
			results = append(results, r.searchResult(filepath.Join(r.root.Path(), e.name), e.isDir))
		}
		return SearchResponse{Results: results}, nil
	}

	root := r.root.Path()
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel := r.root.Rel(path)
		if !strings.Contains(strings.ToLower(d.Name()), q) && !strings.Contains(strings.ToLower(rel), q) {
			return nil
		}
		isDir := d.IsDir()
		if d.Type()&fs.ModeSymlink != 0 {
			info, statErr := os.Stat(path)
			if statErr != nil {
				return nil
			}
			isDir = info.IsDir()
		}
		results = append(results, r.searchResult(path, isDir))
		if len(results) >= maxSearchResults {
			return filepath.SkipAll
		}
		return nil
	})
	return SearchResponse{Results: results}, nil
}

func (r *Registry) searchResult(abs string, isDir bool) SearchResult {
	return SearchResult{
		ID:    r.root.Rel(abs),
		Title: dirPrefix(isDir) + filepath.Base(abs),
		URL:   fileURL(abs),
	}
}

// --- Fetch ---

type FetchRequest struct {
	ID string `json:"id"`
}

type FetchMetadata struct {
	Type string `json:"type"`
	Size *int64 `json:"size,omitempty"`
}

type FetchResponse struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Text     string        `json:"text"`
	URL      string        `json:"url"`
	Metadata FetchMetadata `json:"metadata"`
}

func (r *Registry) fetch(args json.RawMessage) (any, error) {
	var req FetchRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, invalid("file ID is required")
	}
	abs, err := r.root.Resolve(req.ID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, invalid("not found: %s", req.ID)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", req.ID, err)
	}

	resp := FetchResponse{ID: req.ID, Title: filepath.Base(abs), URL: fileURL(abs)}
	if info.IsDir() {
		entries, err := listDir(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to list directory: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, dirPrefix(e.isDir)+e.name)
		}
		resp.Text = fmt.Sprintf("Directory: %s\n\nContents:\n%s", req.ID, strings.Join(names, "\n"))
		resp.Metadata = FetchMetadata{Type: "directory"}
		return resp, nil
	}

	if info.Size() > maxFetchBytes {
		return nil, invalid("file too large (limit 1MB)")
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if utf8.Valid(content) {
		resp.Text = string(content)
	} else {
		ext := filepath.Ext(abs)
		if ext == "" {
			ext = "unknown"
		}
		resp.Text = fmt.Sprintf("[Binary file: %s]", ext)
	}
	size := info.Size()
	resp.Metadata = FetchMetadata{Type: "file", Size: &size}
	return resp, nil
}

// --- Mutations ---

type WriteFileRequest struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

type PathRequest struct {
	Path string `json:"path"`
}

type MutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path"`
	Type    string `json:"type,omitempty"`
}

func (r *Registry) writeFile(args json.RawMessage) (any, error) {
	var req WriteFileRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, invalid("file path is required")
	}
	if req.Content == nil {
		return nil, invalid("'content' is required")
	}
	abs, err := r.root.Resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return nil, invalid("path '%s' is a directory", req.Path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}
	contentBytes := []byte(*req.Content)
	if err := os.WriteFile(abs, contentBytes, 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	return MutationResponse{
		Success: true,
		Message: fmt.Sprintf("Wrote %d bytes to %s", len(contentBytes), req.Path),
		Path:    req.Path,
	}, nil
}

func (r *Registry) createDirectory(args json.RawMessage) (any, error) {
	var req PathRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, invalid("directory path is required")
	}
	abs, err := r.root.Resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return MutationResponse{Success: true, Message: "Created directory: " + req.Path, Path: req.Path}, nil
}

func (r *Registry) deleteFile(args json.RawMessage) (any, error) {
	var req PathRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, invalid("path is required")
	}
	abs, err := r.root.Resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if abs == r.root.Path() {
		return nil, invalid("refusing to delete the allowed root directory")
	}
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, invalid("path does not exist: %s", req.Path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", req.Path, err)
	}
	if info.IsDir() {
		if err := os.RemoveAll(abs); err != nil {
			return nil, fmt.Errorf("failed to delete directory: %w", err)
		}
		return MutationResponse{Success: true, Message: "Deleted directory: " + req.Path, Path: req.Path, Type: "directory"}, nil
	}
	if err := os.Remove(abs); err != nil {
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}
	return MutationResponse{Success: true, Message: "Deleted file: " + req.Path, Path: req.Path, Type: "file"}, nil
}

// --- helpers ---

type dirEntry struct {
	name  string
	isDir bool
}

// listDir returns the entries of dir with directories first, then by
// case-insensitive name. Entries whose type cannot be determined are skipped.
func listDir(dir string) ([]dirEntry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]dirEntry, 0, len(files))
	for _, f := range files {
		isDir := f.IsDir()
		if f.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(filepath.Join(dir, f.Name()))
			if err != nil {
				continue
			}
			isDir = info.IsDir()
		}
		entries = append(entries, dirEntry{name: f.Name(), isDir: isDir})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].isDir != entries[j].isDir {
			return entries[i].isDir
		}
		return strings.ToLower(entries[i].name) < strings.ToLower(entries[j].name)
	})
	return entries, nil
}

func dirPrefix(isDir bool) string {
	if isDir {
		return "[DIR] "
	}
	return ""
}

func fileURL(abs string) string {
	return "file://" + filepath.ToSlash(abs)
}
