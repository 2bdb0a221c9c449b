// Package prompts loads the catalog of reading prompts and locates their
// reference recordings.
//
// The catalog is YAML or JSON, chosen by file extension:
//
//	prompts:
//	  - id: p1
//	    lines: ["The cat sat on the mat.", "It was happy."]
//	    reference_wav: refs/p1.wav
//
// A JSON file may also be a bare array of prompt objects. reference_wav is
// resolved relative to the catalog file.
package prompts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Prompt is one passage to read aloud.
type Prompt struct {
	ID           string   `koanf:"id"`
	Lines        []string `koanf:"lines"`
	ReferenceWAV string   `koanf:"reference_wav"`
}

// Text joins the lines with single spaces into the expected text.
func (p Prompt) Text() string {
	return strings.Join(p.Lines, " ")
}

// Catalog is an immutable, ordered set of prompts.
type Catalog struct {
	prompts []Prompt
	byID    map[string]int
	baseDir string
}

// Load reads the catalog at path.
func Load(path string) (*Catalog, error) {
	k := koanf.New(".")

	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	var provider koanf.Provider = file.Provider(path)
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		provider = listProvider(trimmed)
	}
	if err := k.Load(provider, parser); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}

	var list []Prompt
	if err := k.UnmarshalWithConf("prompts", &list, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return New(list, filepath.Dir(path))
}

// New builds a catalog from prompts whose reference paths are relative to baseDir.
func New(list []Prompt, baseDir string) (*Catalog, error) {
	if len(list) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{
		prompts: make([]Prompt, 0, len(list)),
		byID:    make(map[string]int, len(list)),
		baseDir: baseDir,
	}
	for i, p := range list {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: prompt %d has no id", ErrInvalid, i)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate prompt id %q", ErrInvalid, p.ID)
		}
		if len(p.Lines) == 0 {
			return nil, fmt.Errorf("%w: prompt %q has no lines", ErrInvalid, p.ID)
		}
		c.byID[p.ID] = len(c.prompts)
		c.prompts = append(c.prompts, p)
	}
	return c, nil
}

// Get returns the prompt with id.
func (c *Catalog) Get(id string) (Prompt, error) {
	i, ok := c.byID[id]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c.prompts[i], nil
}

// First returns the first prompt in file order.
func (c *Catalog) First() Prompt {
	return c.prompts[0]
}

// All returns the prompts in file order.
func (c *Catalog) All() []Prompt {
	out := make([]Prompt, len(c.prompts))
	copy(out, c.prompts)
	return out
}

// Len returns the number of prompts.
func (c *Catalog) Len() int { return len(c.prompts) }

// ReferencePath resolves the prompt's reference recording.
func (c *Catalog) ReferencePath(p Prompt) string {
	if p.ReferenceWAV == "" || filepath.IsAbs(p.ReferenceWAV) {
		return p.ReferenceWAV
	}
	return filepath.Join(c.baseDir, p.ReferenceWAV)
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrInvalid, filepath.Ext(path))
	}
}

// listProvider wraps a bare JSON array as {"prompts": [...]} so koanf can
// load it as a map.
type listProvider []byte

func (l listProvider) ReadBytes() ([]byte, error) {
	out := make([]byte, 0, len(l)+len(`{"prompts":}`))
	out = append(out, `{"prompts":`...)
	out = append(out, l...)
	out = append(out, '}')
	return out, nil
}

func (l listProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("listProvider does not support Read()")
}
