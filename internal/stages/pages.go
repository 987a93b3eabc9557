package stages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	minhtml "github.com/tdewolff/minify/v2/html"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/sitepipe/internal/frontmatter"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

// PageData is the value templates are executed with.
type PageData struct {
	Site    map[string]any // pages.data from the configuration
	Page    map[string]any // the page's front matter
	Path    string         // output path relative to the destination root, slash separated
	Content template.HTML  // rendered Markdown body, empty for template pages
}

// FrontMatter strips a leading YAML block and keeps its fields in File.Meta["page"].
type FrontMatter struct{}

func (FrontMatter) Name() string { return "frontmatter" }

func (FrontMatter) Process(_ context.Context, f *pipeline.File) error {
	doc, err := frontmatter.Parse(f.Data)
	if err != nil {
		return sourceErr(f, 1, 0, "%v", err)
	}
	f.Data = doc.Body
	f.Meta["page"] = doc.Fields
	f.Meta["body_line"] = doc.BodyLine
	return nil
}

// Template renders a page. Files whose base name starts with "_" anywhere
// under Root are parsed as named templates (named by their path relative to
// Root) and are available to every page through {{ template "name" . }}.
// Markdown pages are converted with goldmark and wrapped by Layout when that
// partial exists.
type Template struct {
	Root    string // absolute pages directory
	Base    string // Root relative to the source root, slash separated
	Layout  string
	Site    map[string]any
	DestDir string

	once     sync.Once
	partials *template.Template
	loadErr  error
	md       goldmark.Markdown
}

func (t *Template) Name() string { return "template" }

func (t *Template) load() {
	t.md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	t.partials = template.New("").Funcs(funcMap())
	t.loadErr = filepath.WalkDir(t.Root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), "_") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(t.Root, p)
		name := filepath.ToSlash(rel)
		if _, err := t.partials.New(name).Parse(string(data)); err != nil {
			return &partialError{name: name, err: err}
		}
		return nil
	})
}

type partialError struct {
	name string
	err  error
}

func (e *partialError) Error() string { return fmt.Sprintf("partial %s: %v", e.name, e.err) }
func (e *partialError) Unwrap() error { return e.err }

func (t *Template) Process(_ context.Context, f *pipeline.File) error {
	t.once.Do(t.load)
	if t.loadErr != nil {
		var pe *partialError
		if errors.As(t.loadErr, &pe) {
			line, msg := t.errorLine(pe.err, pe.name, 0)
			return sourceErr(&pipeline.File{Rel: path.Join(t.Base, pe.name)}, line, 0, "%s", msg)
		}
		return processingErr(f, t.loadErr, "load page partials")
	}

	page, _ := f.Meta["page"].(map[string]any)
	if page == nil {
		page = map[string]any{}
	}
	isMarkdown := f.Ext() == ".md"
	f.SetExt(".html")
	data := PageData{Site: t.Site, Page: page, Path: path.Join(t.DestDir, f.OutRel)}
	offset := 0
	if n, ok := f.Meta["body_line"].(int); ok {
		offset = n - 1
	}

	tmpl, err := t.partials.Clone()
	if err != nil {
		return processingErr(f, err, "clone templates")
	}

	entry := f.Rel
	if isMarkdown {
		var body bytes.Buffer
		if err := t.md.Convert(f.Data, &body); err != nil {
			return processingErr(f, err, "render markdown")
		}
		data.Content = template.HTML(body.String()) //nolint:gosec // author-controlled content
		entry = t.Layout
		if l, ok := page["layout"].(string); ok && l != "" {
			if tmpl.Lookup(l) == nil {
				return sourceErr(f, 1, 0, "layout %q not found", l)
			}
			entry = l
		}
		if entry == "" || tmpl.Lookup(entry) == nil {
			f.Data = body.Bytes()
			return nil
		}
	} else if _, err := tmpl.New(f.Rel).Parse(string(f.Data)); err != nil {
		line, msg := t.errorLine(err, f.Rel, offset)
		return sourceErr(f, line, 0, "%s", msg)
	}

	var out bytes.Buffer
	if err := tmpl.ExecuteTemplate(&out, entry, data); err != nil {
		line, msg := t.errorLine(err, f.Rel, offset)
		return sourceErr(f, line, 0, "%s", msg)
	}
	f.Data = out.Bytes()
	return nil
}

var templateLine = regexp.MustCompile(`^template: ([^:]+):(\d+):(?:\d+:)?\s*(.*)$`)

// errorLine extracts the line number from a template error. Lines are only
// reported when the error points into name, shifted by the front matter offset.
func (t *Template) errorLine(err error, name string, offset int) (int, string) {
	m := templateLine.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, err.Error()
	}
	if m[1] != name {
		return 0, m[1] + ":" + m[2] + ": " + m[3]
	}
	n, _ := strconv.Atoi(m[2])
	return n + offset, m[3]
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"default": func(def, v any) any {
			if v == nil || v == "" {
				return def
			}
			return v
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"safeHTML": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec // explicit opt-in by the template author
		},
	}
}

// MinifyHTML compacts rendered pages.
type MinifyHTML struct {
	m *minify.M
}

func NewMinifyHTML() *MinifyHTML {
	m := minify.New()
	m.Add("text/html", &minhtml.Minifier{KeepDocumentTags: true, KeepEndTags: true, KeepQuotes: true})
	return &MinifyHTML{m: m}
}

func (*MinifyHTML) Name() string { return "minify-html" }

func (s *MinifyHTML) Process(_ context.Context, f *pipeline.File) error {
	out, err := s.m.Bytes("text/html", f.Data)
	if err != nil {
		return processingErr(f, err, "minify html")
	}
	f.Data = out
	return nil
}
