package stages

import (
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

func TestTranspileLowersSyntax(t *testing.T) {
	st := &Transpile{Target: api.ES2017}
	f := &pipeline.File{Rel: "scripts/app.js", OutRel: "app.js", Data: []byte("export const pick = (a, b) => a ?? b;\n")}
	require.NoError(t, runChain(t, f, st))
	assert.NotContains(t, string(f.Data), "??")
	assert.Empty(t, f.Extras)
}

func TestTranspileSourceMap(t *testing.T) {
	st := &Transpile{Target: api.ESNext, SourceMaps: true, Minify: true}
	f := &pipeline.File{Rel: "scripts/lib/util.js", OutRel: "lib/util.js", Data: []byte("function add(first, second) {\n  return first + second;\n}\nconsole.log(add(1, 2));\n")}
	require.NoError(t, runChain(t, f, st))

	assert.True(t, strings.HasSuffix(string(f.Data), "//# sourceMappingURL=util.js.map\n"))
	require.Len(t, f.Extras, 1)
	assert.Equal(t, "lib/util.js.map", f.Extras[0].Rel)
	assert.Contains(t, string(f.Extras[0].Data), "scripts/lib/util.js")
}

func TestTranspileSyntaxError(t *testing.T) {
	st := &Transpile{Target: api.ES2017}
	err := runChain(t, &pipeline.File{Rel: "scripts/bad.js", Data: []byte("const x = ;\n")}, st)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategorySource))
	assert.Contains(t, err.Error(), "scripts/bad.js:1:")
}

func TestParseTarget(t *testing.T) {
	got, err := ParseTarget("es2017")
	require.NoError(t, err)
	assert.Equal(t, api.ES2017, got)
	_, err = ParseTarget("es3")
	require.Error(t, err)
}
