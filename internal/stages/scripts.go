package stages

import (
	"context"
	"fmt"
	"path"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

var scriptTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

// ParseTarget maps "es2017" style names to esbuild targets.
func ParseTarget(name string) (api.Target, error) {
	t, ok := scriptTargets[name]
	if !ok {
		return 0, fmt.Errorf("unsupported script target %q", name)
	}
	return t, nil
}

// Transpile lowers modern JavaScript syntax to Target.
type Transpile struct {
	Target     api.Target
	Minify     bool
	SourceMaps bool
}

func (*Transpile) Name() string { return "transpile" }

func (t *Transpile) Process(_ context.Context, f *pipeline.File) error {
	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            t.Target,
		Sourcefile:        f.Rel,
		MinifyWhitespace:  t.Minify,
		MinifyIdentifiers: t.Minify,
		MinifySyntax:      t.Minify,
		LegalComments:     api.LegalCommentsEndOfFile,
		LogLevel:          api.LogLevelSilent,
	}
	if f.Ext() == ".mjs" {
		opts.Format = api.FormatESModule
	}
	if t.SourceMaps {
		opts.Sourcemap = api.SourceMapExternal
	}
	res := api.Transform(string(f.Data), opts)
	if len(res.Errors) > 0 {
		return esbuildErr(f, res.Errors[0])
	}

	f.Data = res.Code
	if t.SourceMaps && len(res.Map) > 0 {
		mapRel := f.OutRel + ".map"
		f.Data = append(f.Data, []byte("//# sourceMappingURL="+path.Base(mapRel)+"\n")...)
		f.Extras = append(f.Extras, pipeline.Output{Rel: mapRel, Data: res.Map})
	}
	return nil
}
