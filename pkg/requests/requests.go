package requests

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samvad-hq/capsule/pkg/httpclient"
	"gopkg.in/yaml.v3"
)

// Package requests loads named request definitions (YAML/JSON) for batch runs.

// Definition is a single named request declared in a requests file.
type Definition struct {
	ID      string                `json:"id" yaml:"id"`
	Method  string                `json:"method" yaml:"method"`
	URL     string                `json:"url" yaml:"url"`
	Headers map[string]string     `json:"headers" yaml:"headers"`
	Params  map[string]string     `json:"params" yaml:"params"`
	Data    any                   `json:"data" yaml:"data"`
	JSON    any                   `json:"json" yaml:"json"`
	Proxy   string                `json:"proxy" yaml:"proxy"`
	Auth    *httpclient.BasicAuth `json:"auth" yaml:"auth"`
	Text    bool                  `json:"text" yaml:"text"`
	Extract string                `json:"extract" yaml:"extract"`
	Enabled *bool                 `json:"enabled" yaml:"enabled"`
}

type fileFormat struct {
	Requests []Definition `json:"requests" yaml:"requests"`
}

// Registry holds the loaded definitions in file order.
type Registry struct {
	mu   sync.RWMutex
	defs []Definition
	idx  map[string]Definition
}

// LoadRegistry loads request definitions from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("requests file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open requests file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read requests file: %w", err)
	}

	parsed, err := parseRequests(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Requests) == 0 {
		return nil, errors.New("requests file contains no requests entries")
	}
	return NewRegistry(parsed.Requests)
}

// NewRegistry validates defs and builds a registry from them.
func NewRegistry(defs []Definition) (*Registry, error) {
	reg := &Registry{
		defs: make([]Definition, len(defs)),
		idx:  make(map[string]Definition, len(defs)),
	}
	for i := range defs {
		def := sanitizeDefinition(defs[i])
		if err := validateDefinition(def); err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		if _, exists := reg.idx[def.ID]; exists {
			return nil, fmt.Errorf("duplicate request id %q", def.ID)
		}
		reg.defs[i] = def
		reg.idx[def.ID] = def
	}
	return reg, nil
}

func parseRequests(data []byte, ext string) (fileFormat, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var out fileFormat
		if err := d.fn(data, &out); err == nil {
			return out, nil
		}
	}
	return fileFormat{}, errors.New("requests file format not recognized (expected YAML or JSON)")
}

// sanitizeDefinition trims fields. Method case is kept: dispatch matches it exactly.
func sanitizeDefinition(def Definition) Definition {
	def.ID = strings.TrimSpace(def.ID)
	def.Method = strings.TrimSpace(def.Method)
	def.URL = strings.TrimSpace(def.URL)
	def.Proxy = strings.TrimSpace(def.Proxy)
	def.Extract = strings.TrimSpace(def.Extract)
	def.Headers = sanitizeHeaders(def.Headers)
	if def.Enabled == nil {
		enabled := true
		def.Enabled = &enabled
	}
	return def
}

func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validateDefinition(def Definition) error {
	if def.ID == "" {
		return errors.New("id is required")
	}
	if def.URL == "" {
		return fmt.Errorf("url is required for request %q", def.ID)
	}
	if def.Data != nil && def.JSON != nil {
		return fmt.Errorf("request %q sets both data and json", def.ID)
	}
	if def.Extract != "" && !def.Text {
		return fmt.Errorf("request %q: extract requires text: true", def.ID)
	}
	return nil
}

// ToRequest converts the definition into a dispatcher request.
func (d Definition) ToRequest() httpclient.Request {
	return httpclient.Request{
		Method:  d.Method,
		URL:     d.URL,
		Headers: d.Headers,
		Params:  d.Params,
		Data:    d.Data,
		JSON:    d.JSON,
		Proxy:   d.Proxy,
		Auth:    d.Auth,
		Text:    d.Text,
	}
}

// EnabledValue returns enabled flag defaulting to true.
func (d Definition) EnabledValue() bool {
	if d.Enabled == nil {
		return true
	}
	return *d.Enabled
}

// ByID returns the definition with the given id.
func (r *Registry) ByID(id string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Definition{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.idx[id]
	return def, ok
}

// All returns every definition in file order.
func (r *Registry) All() []Definition {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Enabled returns the definitions that are enabled.
func (r *Registry) Enabled() []Definition {
	all := r.All()
	if len(all) == 0 {
		return nil
	}
	out := make([]Definition, 0, len(all))
	for _, def := range all {
		if def.EnabledValue() {
			out = append(out, def)
		}
	}
	return out
}
