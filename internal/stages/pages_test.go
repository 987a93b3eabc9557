package stages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

func pagesRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "pages")
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func runChain(t *testing.T, f *pipeline.File, chain ...pipeline.Stage) error {
	t.Helper()
	if f.Meta == nil {
		f.Meta = map[string]any{}
	}
	if f.OutRel == "" {
		f.OutRel = f.Rel
	}
	for _, st := range chain {
		if err := st.Process(t.Context(), f); err != nil {
			return err
		}
	}
	return nil
}

func TestTemplateWithPartialsAndFrontMatter(t *testing.T) {
	root := pagesRoot(t, map[string]string{
		"_nav.html":           `<nav>{{ .Site.name }}</nav>`,
		"partials/_foot.tmpl": `<footer>{{ .Path }}</footer>`,
	})
	tmpl := &Template{Root: root, Base: "pages", Site: map[string]any{"name": "Acme"}}
	f := &pipeline.File{
		Rel:    "pages/about/index.tmpl",
		OutRel: "about/index.tmpl",
		Data:   []byte("---\ntitle: About <us>\n---\n<h1>{{ .Page.title }}</h1>{{ template \"_nav.html\" . }}{{ template \"partials/_foot.tmpl\" . }}"),
	}

	require.NoError(t, runChain(t, f, FrontMatter{}, tmpl))
	assert.Equal(t, "about/index.html", f.OutRel)
	assert.Equal(t, `<h1>About &lt;us&gt;</h1><nav>Acme</nav><footer>about/index.html</footer>`, string(f.Data))
}

func TestTemplateMarkdownWithLayout(t *testing.T) {
	root := pagesRoot(t, map[string]string{
		"_layout.html": `<title>{{ .Page.title }}</title><main>{{ .Content }}</main>`,
		"_plain.html":  `<div>{{ .Content }}</div>`,
	})
	tmpl := &Template{Root: root, Base: "pages", Layout: "_layout.html"}

	f := &pipeline.File{Rel: "pages/post.md", Data: []byte("---\ntitle: Post\n---\n# Hello\n\n*world*\n")}
	require.NoError(t, runChain(t, f, FrontMatter{}, tmpl))
	assert.Equal(t, "pages/post.html", f.OutRel)
	assert.Contains(t, string(f.Data), "<title>Post</title>")
	assert.Contains(t, string(f.Data), `<h1 id="hello">Hello</h1>`)
	assert.Contains(t, string(f.Data), "<em>world</em>")

	other := &pipeline.File{Rel: "pages/other.md", Data: []byte("---\nlayout: _plain.html\n---\ntext\n")}
	require.NoError(t, runChain(t, other, FrontMatter{}, tmpl))
	assert.Equal(t, "<div><p>text</p>\n</div>", string(other.Data))

	missing := &pipeline.File{Rel: "pages/x.md", Data: []byte("---\nlayout: _nope.html\n---\ntext\n")}
	err := runChain(t, missing, FrontMatter{}, tmpl)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategorySource))
}

func TestTemplateMarkdownWithoutLayout(t *testing.T) {
	tmpl := &Template{Root: pagesRoot(t, nil), Base: "pages", Layout: "_layout.html"}
	f := &pipeline.File{Rel: "pages/a.md", Data: []byte("plain")}
	require.NoError(t, runChain(t, f, FrontMatter{}, tmpl))
	assert.Equal(t, "<p>plain</p>\n", string(f.Data))
}

func TestTemplateSyntaxErrorReportsLine(t *testing.T) {
	tmpl := &Template{Root: pagesRoot(t, nil), Base: "pages"}
	f := &pipeline.File{Rel: "pages/bad.html", Data: []byte("---\ntitle: x\n---\n<p>ok</p>\n{{ if }}\n")}

	err := runChain(t, f, FrontMatter{}, tmpl)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategorySource))
	assert.Contains(t, err.Error(), "pages/bad.html:5")
}

func TestTemplateBrokenPartialFailsPages(t *testing.T) {
	root := pagesRoot(t, map[string]string{"_broken.html": "{{ end }}"})
	tmpl := &Template{Root: root, Base: "pages"}
	err := runChain(t, &pipeline.File{Rel: "pages/a.html", Data: []byte("a")}, tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pages/_broken.html")
}

func TestFrontMatterUnterminated(t *testing.T) {
	err := runChain(t, &pipeline.File{Rel: "pages/a.html", Data: []byte("---\ntitle: x\n")}, FrontMatter{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategorySource))
}

func TestMinifyHTML(t *testing.T) {
	in := "<html>\n  <body>\n    <p>hi</p>\n  </body>\n</html>\n"
	f := &pipeline.File{Rel: "pages/a.html", Data: []byte(in)}
	require.NoError(t, runChain(t, f, NewMinifyHTML()))
	assert.Less(t, len(f.Data), len(in))
	assert.Contains(t, string(f.Data), "<p>hi</p>")
	assert.NotContains(t, string(f.Data), "\n  ")
}
