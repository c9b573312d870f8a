// Package frontmatter reads and writes the YAML header of Markdown posts:
//
//	---
//	title: Hello
//	tags: [a, b]
//	---
//
//	Body text.
package frontmatter

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v2"

	"cms-go/internal/cms"
)

const delimiter = "---"

// Document is a parsed post.
type Document struct {
	Meta map[string]any
	Body []byte
	// HasFrontMatter is false when the post had no header at all.
	HasFrontMatter bool
}

// Split separates the header from the Markdown body without decoding it.
// A body with no opening delimiter, or with no closing one, is all Markdown.
func Split(data []byte) (header, body []byte, ok bool) {
	text := strings.TrimPrefix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\ufeff")
	if !strings.HasPrefix(text, delimiter+"\n") {
		return nil, data, false
	}
	rest := text[len(delimiter)+1:]

	var hdr string
	switch {
	case rest == delimiter || strings.HasPrefix(rest, delimiter+"\n"):
		rest = strings.TrimPrefix(rest, delimiter)
	default:
		closing := "\n" + delimiter + "\n"
		if idx := strings.Index(rest, closing); idx >= 0 {
			hdr, rest = rest[:idx+1], rest[idx+len(closing):]
		} else if strings.HasSuffix(rest, "\n"+delimiter) {
			hdr, rest = rest[:len(rest)-len(delimiter)], ""
		} else {
			return nil, data, false
		}
	}
	return []byte(hdr), []byte(strings.TrimLeft(rest, "\n")), true
}

// Parse decodes the header. A malformed header is ErrInvalidInput.
func Parse(data []byte) (*Document, error) {
	header, body, ok := Split(data)
	doc := &Document{Meta: map[string]any{}, Body: body, HasFrontMatter: ok}
	if !ok || len(bytes.TrimSpace(header)) == 0 {
		return doc, nil
	}

	var raw map[interface{}]interface{}
	if err := yaml.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("front matter: %v: %w", err, cms.ErrInvalidInput)
	}
	for k, v := range raw {
		doc.Meta[fmt.Sprint(k)] = normalize(v)
	}
	return doc, nil
}

// Compose renders meta and body in the canonical layout. An empty meta map
// yields the body alone.
func Compose(meta map[string]any, body []byte) ([]byte, error) {
	if len(meta) == 0 {
		return body, nil
	}
	header, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(header)
	buf.WriteString(delimiter + "\n\n")
	buf.Write(bytes.TrimLeft(body, "\n"))
	return buf.Bytes(), nil
}

// Title returns the front-matter title, else the first level-one heading,
// else the filename without its extension.
func Title(data []byte, filename string) string {
	doc, err := Parse(data)
	if err == nil {
		if t, ok := doc.Meta["title"].(string); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	} else {
		_, body, _ := Split(data)
		doc = &Document{Body: body}
	}
	for _, line := range strings.Split(string(doc.Body), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// normalize converts yaml.v2 maps into JSON-shaped values.
func normalize(v any) any {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []interface{}:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
