// Package attendee maps free-form attendee names to contact addresses.
package attendee

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultDomain is used for generated addresses when the directory has none.
const DefaultDomain = "example.com"

// Entry is one known contact.
type Entry struct {
	PrimaryName string   `json:"primary_name" yaml:"primary_name"`
	Email       string   `json:"email" yaml:"email"`
	Aliases     []string `json:"aliases" yaml:"aliases"`
}

// Directory is the alias table the resolver matches against.
type Directory struct {
	Attendees     []Entry `json:"attendees" yaml:"attendees"`
	DefaultDomain string  `json:"default_domain" yaml:"default_domain"`
}

// FallbackDirectory is used when no directory file is configured or found.
func FallbackDirectory() Directory {
	return Directory{
		Attendees: []Entry{
			{PrimaryName: "alice", Email: "alice.nguyen@example.com", Aliases: []string{"Alice", "alice nguyen"}},
			{PrimaryName: "bob", Email: "bob.martin@example.com", Aliases: []string{"Bob", "bob martin", "robert martin"}},
			{PrimaryName: "carol", Email: "carol.diaz@example.com", Aliases: []string{"Carol", "carol diaz"}},
		},
		DefaultDomain: DefaultDomain,
	}
}

// LoadDirectory reads a directory from a YAML or JSON file. A missing file
// yields the fallback directory and reports fromFile=false.
func LoadDirectory(path string) (dir Directory, fromFile bool, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return FallbackDirectory(), false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return FallbackDirectory(), false, nil
	}
	if err != nil {
		return Directory{}, false, fmt.Errorf("read attendee directory: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &dir)
	default:
		err = yaml.Unmarshal(data, &dir)
	}
	if err != nil {
		return Directory{}, false, fmt.Errorf("parse attendee directory %s: %w", path, err)
	}
	if err := dir.Validate(); err != nil {
		return Directory{}, false, fmt.Errorf("attendee directory %s: %w", path, err)
	}
	return dir, true, nil
}

// Validate checks every entry has a name and an address.
func (d Directory) Validate() error {
	for i, e := range d.Attendees {
		if strings.TrimSpace(e.PrimaryName) == "" {
			return fmt.Errorf("entry %d: primary_name is required", i)
		}
		if !strings.Contains(e.Email, "@") {
			return fmt.Errorf("entry %q: invalid email %q", e.PrimaryName, e.Email)
		}
	}
	return nil
}
