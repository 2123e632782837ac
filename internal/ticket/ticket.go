// Package ticket loads the optional work-item record handed to the agent with
// every task.
package ticket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Ticket is the issue or work item a run implements. The orchestrator never
// interprets it; the agent receives the original file text.
type Ticket struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Labels      []string `json:"labels"`

	raw string
}

// Load reads a ticket from a .yaml, .yml, or .json file.
func Load(path string) (*Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticket: %w", err)
	}
	t, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes ticket data. ext selects the format; anything other than
// .yaml or .yml is treated as JSON.
func Parse(ext string, data []byte) (*Ticket, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("ticket is empty")
	}

	jsonData, err := toJSON(ext, data)
	if err != nil {
		return nil, err
	}

	var t Ticket
	if err := json.Unmarshal(jsonData, &t); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if t.ID == "" && t.Title == "" {
		return nil, errors.New("ticket needs an id or a title")
	}

	t.raw = strings.TrimSpace(string(data))
	return &t, nil
}

// Text returns the ticket file contents as read.
func (t *Ticket) Text() string {
	if t == nil {
		return ""
	}
	return t.raw
}

// Label is a short display name, e.g. "ENG-42: Add retries".
func (t *Ticket) Label() string {
	if t == nil {
		return ""
	}
	switch {
	case t.ID != "" && t.Title != "":
		return t.ID + ": " + t.Title
	case t.ID != "":
		return t.ID
	default:
		return t.Title
	}
}

func toJSON(ext string, data []byte) ([]byte, error) {
	ext = strings.ToLower(ext)
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	j, err := json.Marshal(normalize(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalize turns map[any]any into map[string]any so the value can be
// JSON-marshaled.
func normalize(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalize(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalize(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	default:
		return in
	}
}
