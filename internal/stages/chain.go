// Package stages holds the transform chains of each category: page
// templating, stylesheet compilation and post-processing, script
// transpiling and image compression.
package stages

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

// Deps are long-lived collaborators shared across runs.
type Deps struct {
	Sass SassCompiler
}

// Chain builds a fresh stage chain for one run of cat. Page partials are
// re-read by every chain, so edits to them take effect on the next run.
func Chain(cfg *config.Config, cat pipeline.Category, deps Deps) ([]pipeline.Stage, error) {
	switch cat {
	case pipeline.Pages:
		base := patternBase(cfg.Pages.Src)
		chain := []pipeline.Stage{
			FrontMatter{},
			&Template{
				Root:    filepath.Join(cfg.SourceRoot(), filepath.FromSlash(base)),
				Base:    base,
				Layout:  cfg.Pages.Layout,
				Site:    cfg.Pages.Data,
				DestDir: cfg.Pages.Dest,
			},
		}
		if cfg.Pages.Minify {
			chain = append(chain, NewMinifyHTML())
		}
		return chain, nil

	case pipeline.Styles:
		engines, err := ParseEngines(cfg.Styles.Prefix.Targets)
		if err != nil {
			return nil, err
		}
		compiler := deps.Sass
		if compiler == nil {
			compiler = NewDartSass(cfg.Styles.SassBinary)
		}
		includes := make([]string, 0, len(cfg.Styles.IncludePaths))
		for _, p := range cfg.Styles.IncludePaths {
			if !filepath.IsAbs(p) {
				p = filepath.Join(cfg.BaseDir(), p)
			}
			includes = append(includes, p)
		}
		return []pipeline.Stage{
			&Sass{
				Compiler:     compiler,
				Root:         filepath.Join(cfg.SourceRoot(), filepath.FromSlash(patternBase(cfg.Styles.Src))),
				IncludePaths: includes,
				Compressed:   cfg.Styles.OutputStyle == config.OutputCompressed,
				SourceMaps:   cfg.Styles.SourceMaps,
			},
			&PostCSS{
				Engines:    engines,
				Flexbugs:   cfg.Styles.FlexbugsFixes,
				Grid:       cfg.Styles.Prefix.Grid,
				Minify:     cfg.Styles.Minify,
				SourceMaps: cfg.Styles.SourceMaps,
			},
		}, nil

	case pipeline.Scripts:
		target, err := ParseTarget(cfg.Scripts.Target)
		if err != nil {
			return nil, err
		}
		return []pipeline.Stage{&Transpile{Target: target, Minify: cfg.Scripts.Minify, SourceMaps: cfg.Scripts.SourceMaps}}, nil

	case pipeline.Images:
		img := cfg.Images
		c := Compress{
			PNGColors:    img.PNG.Colors,
			PNGDither:    img.PNG.Dither,
			JPEGQuality:  img.JPEG.Quality,
			SVGPrecision: img.SVG.Precision,
		}
		if len(img.PNG.Quality) == 2 {
			c.PNGMinQuality, c.PNGMaxQuality = img.PNG.Quality[0], img.PNG.Quality[1]
		}
		return []pipeline.Stage{NewCompress(c)}, nil
	}
	return nil, fmt.Errorf("no chain for category %s", cat)
}

// patternBase returns the static directory shared by the first pattern.
func patternBase(patterns []string) string {
	if len(patterns) == 0 {
		return ""
	}
	base, _ := doublestar.SplitPattern(patterns[0])
	if base == "." {
		return ""
	}
	return path.Clean(base)
}
