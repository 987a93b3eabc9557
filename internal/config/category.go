package config

import (
	"git.home.luguber.info/inful/sitepipe/internal/glob"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

type namedCategory struct {
	key     string
	cat     pipeline.Category
	cfg     CategoryConfig
	enabled bool
}

func (c *Config) categoryConfigs() []namedCategory {
	return []namedCategory{
		{"pages", pipeline.Pages, c.Pages.CategoryConfig, true},
		{"styles", pipeline.Styles, c.Styles.CategoryConfig, true},
		{"scripts", pipeline.Scripts, c.Scripts.CategoryConfig, c.Scripts.Enabled},
		{"images", pipeline.Images, c.Images.CategoryConfig, true},
	}
}

// ResolvedCategory is a category's configuration with paths made absolute.
type ResolvedCategory struct {
	Category pipeline.Category
	Set      glob.Set
	DestRoot string
	DestDir  string
}

// Category resolves the source globs and destination of cat.
func (c *Config) Category(cat pipeline.Category) (ResolvedCategory, error) {
	for _, n := range c.categoryConfigs() {
		if n.cat != cat {
			continue
		}
		set, err := glob.New(c.SourceRoot(), n.cfg.Src, n.cfg.Exclude)
		if err != nil {
			return ResolvedCategory{}, err
		}
		return ResolvedCategory{Category: cat, Set: set, DestRoot: c.DestRoot(), DestDir: n.cfg.Dest}, nil
	}
	return ResolvedCategory{}, configErr("category", "unknown category %s", cat)
}

// BuildCategories lists the categories built by a full build.
func (c *Config) BuildCategories() []pipeline.Category {
	var out []pipeline.Category
	for _, n := range c.categoryConfigs() {
		if n.enabled {
			out = append(out, n.cat)
		}
	}
	return out
}

// WatchCategories lists the categories rebuilt on change. Images are only
// watched when watch.images is set.
func (c *Config) WatchCategories() []pipeline.Category {
	var out []pipeline.Category
	for _, cat := range c.BuildCategories() {
		if cat == pipeline.Images && !c.Watch.Images {
			continue
		}
		out = append(out, cat)
	}
	return out
}
