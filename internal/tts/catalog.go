package tts

import (
	"context"
	"slices"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmotion is the emotion every voice supports.
const DefaultEmotion = "默认"

// Voice describes the emotions a voice model supports per language.
type Voice struct {
	Name     string
	Emotions map[string][]string
}

// Languages returns the voice languages sorted by name.
func (v Voice) Languages() []string {
	langs := make([]string, 0, len(v.Emotions))
	for lang := range v.Emotions {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// SupportedEmotions returns the emotions for lang, or those of the first
// language when the voice does not list lang.
func (v Voice) SupportedEmotions(lang string) []string {
	if list, ok := v.Emotions[lang]; ok {
		return list
	}
	langs := v.Languages()
	if len(langs) == 0 {
		return nil
	}
	return v.Emotions[langs[0]]
}

// Catalog is the set of voices available for one API version.
type Catalog struct {
	Version string
	voices  map[string]Voice
}

// NewCatalog builds a catalog from the service's models payload.
func NewCatalog(version string, models map[string]map[string][]string) *Catalog {
	c := &Catalog{Version: version, voices: make(map[string]Voice, len(models))}
	for name, emotions := range models {
		c.voices[name] = Voice{Name: name, Emotions: emotions}
	}
	return c
}

// Loaded reports whether the catalog holds at least one voice.
func (c *Catalog) Loaded() bool {
	return c != nil && len(c.voices) > 0
}

// Voice returns the named voice.
func (c *Catalog) Voice(name string) (Voice, bool) {
	if c == nil {
		return Voice{}, false
	}
	v, ok := c.voices[name]
	return v, ok
}

// Names returns all voice names sorted.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.voices))
	for name := range c.voices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of voices.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.voices)
}

// NormalizeEmotion resolves the emotion that will actually be requested.
// Unsupported emotions fall back to defaultEmotion; voices missing from the
// catalog keep the requested emotion.
func NormalizeEmotion(c *Catalog, voice, lang, requested, defaultEmotion string) string {
	if defaultEmotion == "" {
		defaultEmotion = DefaultEmotion
	}
	if requested == "" || requested == defaultEmotion {
		return defaultEmotion
	}
	v, ok := c.Voice(voice)
	if !ok {
		return requested
	}
	if slices.Contains(v.SupportedEmotions(lang), requested) {
		return requested
	}
	return defaultEmotion
}

// ModelLister fetches the models payload for an API version.
type ModelLister interface {
	Models(ctx context.Context, version string) (map[string]map[string][]string, error)
}

// CatalogCache keeps one catalog per API version.
type CatalogCache struct {
	lister         ModelLister
	defaultVersion string
	catalogs       *lru.Cache[string, *Catalog]
	mu             sync.Mutex
}

// NewCatalogCache creates a catalog cache holding up to size versions.
func NewCatalogCache(lister ModelLister, defaultVersion string, size int) (*CatalogCache, error) {
	if size <= 0 {
		size = 8
	}
	catalogs, err := lru.New[string, *Catalog](size)
	if err != nil {
		return nil, err
	}
	return &CatalogCache{
		lister:         lister,
		defaultVersion: defaultVersion,
		catalogs:       catalogs,
	}, nil
}

// Load fetches the catalog for version unless it is already cached.
// An empty version means the default version.
func (cc *CatalogCache) Load(ctx context.Context, version string) (*Catalog, error) {
	if version == "" {
		version = cc.defaultVersion
	}
	if c, ok := cc.catalogs.Get(version); ok {
		return c, nil
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if c, ok := cc.catalogs.Get(version); ok {
		return c, nil
	}

	models, err := cc.lister.Models(ctx, version)
	if err != nil {
		return nil, err
	}
	c := NewCatalog(version, models)
	cc.catalogs.Add(version, c)
	return c, nil
}

// Catalog returns the cached catalog for version without fetching.
func (cc *CatalogCache) Catalog(version string) *Catalog {
	if version == "" {
		version = cc.defaultVersion
	}
	c, _ := cc.catalogs.Get(version)
	return c
}

// Loaded reports whether the default version's catalog holds voices.
func (cc *CatalogCache) Loaded() bool {
	return cc.Catalog("").Loaded()
}

// Put installs a catalog directly.
func (cc *CatalogCache) Put(c *Catalog) {
	cc.catalogs.Add(c.Version, c)
}

// DefaultVersion returns the version used when a task names none.
func (cc *CatalogCache) DefaultVersion() string {
	return cc.defaultVersion
}
