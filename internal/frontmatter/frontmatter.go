// Package frontmatter separates a leading YAML block from page content.
//
//	---
//	title: About
//	---
//	<h1>{{ .Page.title }}</h1>
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrUnterminated means the content opened a front matter block that never closes.
var ErrUnterminated = errors.New("front matter opened with --- but never closed")

// Document is page content with its front matter decoded.
type Document struct {
	Fields map[string]any
	Body   []byte
	// BodyLine is the 1-based line the body starts on, for error positions.
	BodyLine int
}

// Parse splits content and decodes the YAML fields. Content without a
// leading "---" line is returned as the body with no fields.
func Parse(content []byte) (Document, error) {
	raw, body, ok, err := split(content)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Fields: map[string]any{}, Body: content, BodyLine: 1}
	if !ok {
		return doc, nil
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := yaml.Unmarshal(raw, &doc.Fields); err != nil {
			return Document{}, fmt.Errorf("front matter: %w", err)
		}
		if doc.Fields == nil {
			doc.Fields = map[string]any{}
		}
	}
	doc.Body = body
	doc.BodyLine = bytes.Count(content[:len(content)-len(body)], []byte("\n")) + 1
	return doc, nil
}

// split returns the raw front matter block and the remaining body. The
// block closes at the first line consisting of exactly "---".
func split(content []byte) (raw, body []byte, ok bool, err error) {
	first, rest, found := bytes.Cut(content, []byte("\n"))
	if !found || string(bytes.TrimSuffix(first, []byte("\r"))) != "---" {
		return nil, content, false, nil
	}

	offset := 0
	for offset <= len(rest) {
		line, _, more := bytes.Cut(rest[offset:], []byte("\n"))
		end := offset + len(line)
		if string(bytes.TrimSuffix(line, []byte("\r"))) == "---" {
			if more {
				end++
			}
			return rest[:offset], rest[end:], true, nil
		}
		if !more {
			break
		}
		offset = end + 1
	}
	return nil, nil, false, ErrUnterminated
}
