package stages

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

var targetPattern = regexp.MustCompile(`^([a-z]+)([0-9][0-9.]*)$`)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"safari":  api.EngineSafari,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"ie":      api.EngineIE,
}

// ParseEngines turns targets like "chrome120" into esbuild engines.
func ParseEngines(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		m := targetPattern.FindStringSubmatch(strings.ToLower(t))
		if m == nil {
			return nil, fmt.Errorf("invalid browser target %q", t)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", m[1], t)
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

// PostCSS applies layout fixes, then lowers and vendor-prefixes the CSS for
// the configured browsers with esbuild. It produces the final .css and,
// when enabled, the external .css.map.
type PostCSS struct {
	Engines    []api.Engine
	Flexbugs   bool
	Grid       bool
	Minify     bool
	SourceMaps bool
}

func (*PostCSS) Name() string { return "postcss" }

func (p *PostCSS) Process(_ context.Context, f *pipeline.File) error {
	css := string(f.Data)
	if p.Flexbugs {
		css = FixFlexbugs(css)
	}
	if p.Grid {
		css = AddGridFallbacks(css)
	}
	if sm, ok := f.Meta["sourcemap"].(string); ok && p.SourceMaps {
		css += "\n/*# sourceMappingURL=data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(sm)) + " */\n"
	}

	opts := api.TransformOptions{
		Loader:           api.LoaderCSS,
		Engines:          p.Engines,
		Sourcefile:       f.Rel,
		MinifyWhitespace: p.Minify,
		MinifySyntax:     p.Minify,
		LegalComments:    api.LegalCommentsInline,
		LogLevel:         api.LogLevelSilent,
	}
	if p.SourceMaps {
		opts.Sourcemap = api.SourceMapExternal
	}
	res := api.Transform(css, opts)
	if len(res.Errors) > 0 {
		return esbuildErr(f, res.Errors[0])
	}
	// esbuild recovers from CSS syntax errors with a warning; treat them as
	// failures so broken stylesheets are reported instead of half-written.
	for _, w := range res.Warnings {
		if w.ID == "css-syntax-error" {
			return esbuildErr(f, w)
		}
	}

	f.SetExt(".css")
	f.Data = res.Code
	if p.SourceMaps && len(res.Map) > 0 {
		mapRel := f.OutRel + ".map"
		f.Data = append(f.Data, []byte("/*# sourceMappingURL="+path.Base(mapRel)+" */\n")...)
		f.Extras = append(f.Extras, pipeline.Output{Rel: mapRel, Data: res.Map})
	}
	return nil
}

func esbuildErr(f *pipeline.File, msg api.Message) error {
	if msg.Location != nil {
		return sourceErr(f, msg.Location.Line, msg.Location.Column+1, "%s", msg.Text)
	}
	return sourceErr(f, 0, 0, "%s", msg.Text)
}
