package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

//go:embed data/*.json
var builtin embed.FS

// ErrDuplicateEntry is returned when two entries share library, version and
// function name.
var ErrDuplicateEntry = errors.New("duplicate catalog entry")

// idNamespace scopes the deterministic vector ids of catalog entries.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("breakguard/catalog"))

// MigrationExample shows code before and after moving off an API.
type MigrationExample struct {
	Before string `json:"before" yaml:"before"`
	After  string `json:"after" yaml:"after"`
}

// Entry is one documented API of a library version.
type Entry struct {
	Library     string            `json:"library" yaml:"library"`
	Version     int               `json:"version" yaml:"version"`
	Function    string            `json:"function" yaml:"function"`
	Description string            `json:"description" yaml:"description"`
	Signature   string            `json:"signature" yaml:"signature"`
	Category    string            `json:"category,omitempty" yaml:"category,omitempty"`
	Deprecated  bool              `json:"deprecated" yaml:"deprecated"`
	Replacement string            `json:"replacement,omitempty" yaml:"replacement,omitempty"`
	Migration   *MigrationExample `json:"migration,omitempty" yaml:"migration,omitempty"`
}

// Key is library/version/function, unique within a catalog.
func (e Entry) Key() string {
	return fmt.Sprintf("%s/%d/%s", e.Library, e.Version, e.Function)
}

// ID is the stable vector id of the entry.
func (e Entry) ID() string {
	return uuid.NewSHA1(idNamespace, []byte(e.Key())).String()
}

type fileFormat struct {
	Library string  `json:"library"`
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

type libVersion struct {
	library string
	version int
}

// Catalog is a read-only set of API entries indexed by library and version.
type Catalog struct {
	byID    map[string]Entry
	byKey   map[string]Entry
	grouped map[libVersion][]Entry
}

// New builds a catalog from entries, rejecting duplicates.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[string]Entry, len(entries)),
		byKey:   make(map[string]Entry, len(entries)),
		grouped: make(map[libVersion][]Entry),
	}
	for _, e := range entries {
		e.Library = strings.ToLower(strings.TrimSpace(e.Library))
		if _, dup := c.byKey[e.Key()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Key())
		}
		c.byKey[e.Key()] = e
		c.byID[e.ID()] = e
		lv := libVersion{e.Library, e.Version}
		c.grouped[lv] = append(c.grouped[lv], e)
	}
	return c, nil
}

// Parse validates one catalog document and returns its entries with library
// and version filled in from the document header.
func Parse(data []byte, source string) ([]Entry, error) {
	if err := validateDocument(data); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", source, err)
	}
	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", source, err)
	}
	for i := range doc.Entries {
		doc.Entries[i].Library = doc.Library
		doc.Entries[i].Version = doc.Version
	}
	return doc.Entries, nil
}

// LoadDir loads every *.json catalog in dir.
func LoadDir(dir string) (*Catalog, error) {
	return loadFS(os.DirFS(dir), dir)
}

// LoadBuiltin loads the catalogs shipped with the binary.
func LoadBuiltin() (*Catalog, error) {
	sub, err := fs.Sub(builtin, "data")
	if err != nil {
		return nil, err
	}
	return loadFS(sub, "builtin")
}

// Load reads dir when set and falls back to the builtin catalogs.
func Load(dir string) (*Catalog, error) {
	if strings.TrimSpace(dir) == "" {
		return LoadBuiltin()
	}
	return LoadDir(dir)
}

func loadFS(fsys fs.FS, label string) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "*.json")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var all []Entry
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", p, err)
		}
		entries, err := Parse(data, filepath.Join(label, p))
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return New(all...)
}

// Entries returns the entries of one library version in load order.
func (c *Catalog) Entries(library string, version int) []Entry {
	src := c.grouped[libVersion{strings.ToLower(library), version}]
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// ByID finds an entry by its vector id.
func (c *Catalog) ByID(id string) (Entry, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// Lookup finds an entry by library, version and function name.
func (c *Catalog) Lookup(library string, version int, function string) (Entry, bool) {
	e, ok := c.byKey[Entry{Library: strings.ToLower(library), Version: version, Function: function}.Key()]
	return e, ok
}

// Versions lists the versions available for a library, ascending.
func (c *Catalog) Versions(library string) []int {
	var out []int
	for lv := range c.grouped {
		if lv.library == strings.ToLower(library) {
			out = append(out, lv.version)
		}
	}
	sort.Ints(out)
	return out
}

// Len is the total number of entries.
func (c *Catalog) Len() int {
	return len(c.byKey)
}

// Libraries lists the library identifiers present, sorted.
func (c *Catalog) Libraries() []string {
	seen := make(map[string]struct{})
	var out []string
	for lv := range c.grouped {
		if _, ok := seen[lv.library]; ok {
			continue
		}
		seen[lv.library] = struct{}{}
		out = append(out, lv.library)
	}
	sort.Strings(out)
	return out
}
