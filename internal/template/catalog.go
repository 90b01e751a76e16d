package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry describes one scaffold the selector may choose.
type Entry struct {
	Name        string   `yaml:"name"`
	Path        string   `yaml:"path"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

type catalogFile struct {
	Templates []Entry `yaml:"templates"`
}

// BuiltinCatalog returns the stock scaffolds rooted at dir.
func BuiltinCatalog(dir string) []Entry {
	entries := []Entry{
		{
			Name:        "nextjs-clerk-prisma",
			Description: "Next.js 14+ with Clerk auth and Prisma/SQLite",
			Keywords:    []string{"nextjs", "next.js", "react", "web app", "full stack", "auth", "database"},
		},
		{
			Name:        "nextjs-blog",
			Description: "Blog template with markdown support",
			Keywords:    []string{"blog", "content", "markdown", "cms"},
		},
		{
			Name:        "react-dashboard",
			Description: "React dashboard with analytics",
			Keywords:    []string{"dashboard", "admin", "analytics", "charts"},
		},
		{
			Name:        "express-api",
			Description: "Express.js API server",
			Keywords:    []string{"api", "backend", "express", "rest"},
		},
	}
	for i := range entries {
		entries[i].Path = filepath.Join(dir, entries[i].Name)
	}
	return entries
}

// LoadCatalog reads a YAML catalog. Relative paths resolve against dir and a
// missing path defaults to dir/name.
func LoadCatalog(path, dir string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("template catalog %s has no templates", path)
	}

	seen := make(map[string]bool, len(file.Templates))
	entries := make([]Entry, 0, len(file.Templates))
	for i, e := range file.Templates {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			return nil, fmt.Errorf("template catalog entry %d has no name", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("template catalog has duplicate entry %q", e.Name)
		}
		seen[e.Name] = true

		switch {
		case e.Path == "":
			e.Path = filepath.Join(dir, e.Name)
		case !filepath.IsAbs(e.Path):
			e.Path = filepath.Join(dir, e.Path)
		}
		for j, kw := range e.Keywords {
			e.Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
		entries = append(entries, e)
	}
	return entries, nil
}
