// Package markup renders README sources to an HTML fragment and a title.
//
// Sources are parsed as CommonMark with GitHub extensions. reStructuredText
// documents whose title is an underlined (optionally overlined) line are
// recognized too: section titles are normalized to ATX headings before
// parsing, with levels assigned in the order adornment styles first appear.
// An optional YAML front matter block may set the title explicitly.
package markup

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/gurisko/projects/internal/project"
)

var errInvalidUTF8 = errors.New("source is not valid UTF-8")

// RenderError reports malformed markup.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return "render readme: " + e.Err.Error() }

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer implements project.Renderer.
type Renderer struct {
	md goldmark.Markdown
	// headingShift is added to every section heading level, so the body
	// nests under the page's own headings.
	headingShift int
}

var _ project.Renderer = (*Renderer)(nil)

// New creates a Renderer. Raw HTML in sources is never passed through.
func New() *Renderer {
	return &Renderer{
		md:           goldmark.New(goldmark.WithExtensions(extension.GFM)),
		headingShift: 1,
	}
}

type frontMatter struct {
	Title string `yaml:"title" toml:"title" json:"title"`
}

// Render extracts the document title and renders the rest of the document.
func (r *Renderer) Render(src []byte) (*project.Readme, error) {
	if !utf8.Valid(src) {
		return nil, &RenderError{Err: errInvalidUTF8}
	}

	var fm frontMatter
	body, err := frontmatter.Parse(bytes.NewReader(src), &fm)
	if err != nil {
		// A "---" overlined reST title is not front matter.
		if !overlinedTitle(src) {
			return nil, &RenderError{Err: err}
		}
		fm, body = frontMatter{}, src
	}
	body = normalizeSections(normalizeTitle(body))

	doc := r.md.Parser().Parse(text.NewReader(body))

	title := strings.TrimSpace(fm.Title)
	if h, ok := doc.FirstChild().(*ast.Heading); ok {
		if title == "" {
			title = plainText(h, body)
		}
		doc.RemoveChild(doc, h)
	}

	if r.headingShift > 0 {
		_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if h, ok := n.(*ast.Heading); ok && entering {
				h.Level = min(h.Level+r.headingShift, 6)
			}
			return ast.WalkContinue, nil
		})
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, body, doc); err != nil {
		return nil, &RenderError{Err: err}
	}

	return &project.Readme{Title: title, Body: buf.String()}, nil
}

// plainText concatenates the text segments below n.
func plainText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// normalizeTitle rewrites a leading reST section title into a setext
// heading: an overline matching the underline is dropped, and underline
// characters other than '=' become '='.
func normalizeTitle(src []byte) []byte {
	lines := strings.SplitAfter(string(src), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) >= 3 && isAdornment(lines[0]) && strings.TrimSpace(lines[0]) == strings.TrimSpace(lines[2]) {
		lines = lines[1:]
	}
	if len(lines) < 2 || strings.TrimSpace(lines[0]) == "" || !isAdornment(lines[1]) {
		return src
	}
	adornment := strings.TrimSpace(lines[1])
	if adornment[0] != '=' {
		lines[1] = strings.Repeat("=", len(adornment)) + "\n"
	}
	lines[0] = strings.TrimSpace(lines[0]) + "\n"
	return []byte(strings.Join(lines, ""))
}

// overlinedTitle reports whether src opens with a reST title between two
// identical adornment lines.
func overlinedTitle(src []byte) bool {
	lines := strings.SplitN(string(src), "\n", 4)
	if len(lines) < 3 || !isAdornment(lines[0]) {
		return false
	}
	title := strings.TrimSpace(lines[1])
	return title != "" && !strings.Contains(title, ":") && !isAdornment(lines[1]) &&
		strings.TrimSpace(lines[0]) == strings.TrimSpace(lines[2])
}

// normalizeSections rewrites reST section titles into ATX headings. A
// section opening the document is the title at level 1; later styles take
// the following levels in order of first appearance. Fenced code is left
// alone.
func normalizeSections(src []byte) []byte {
	lines := strings.SplitAfter(string(src), "\n")
	levels := make(map[string]int)
	next := 2
	content, fenced, changed := false, false, false

	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			fenced = !fenced
		}
		text, style, n := "", "", 0
		if !fenced && (i == 0 || strings.TrimSpace(lines[i-1]) == "") {
			text, style, n = sectionAt(lines, i)
		}
		if n == 0 {
			out = append(out, line)
			if strings.TrimSpace(line) != "" {
				content = true
			}
			continue
		}

		level, ok := levels[style]
		if !ok {
			if content {
				level = next
				next++
			} else {
				level = 1
			}
			levels[style] = level
		}
		out = append(out, strings.Repeat("#", min(level, 6))+" "+text+"\n")
		content, changed = true, true
		i += n - 1
	}
	if !changed {
		return src
	}
	return []byte(strings.Join(out, ""))
}

// sectionAt matches an underlined or overlined section title starting at
// lines[i]. It returns the title, its adornment style and the number of
// lines consumed, or n == 0 when there is no title.
func sectionAt(lines []string, i int) (text, style string, n int) {
	blankAt := func(j int) bool { return j >= len(lines) || strings.TrimSpace(lines[j]) == "" }
	long := func(adornment, title string) bool {
		return len(strings.TrimSpace(adornment)) >= utf8.RuneCountInString(title)
	}

	if isAdornment(lines[i]) && i+2 < len(lines) {
		text = strings.TrimSpace(lines[i+1])
		if text != "" && !isAdornment(lines[i+1]) && long(lines[i], text) &&
			strings.TrimSpace(lines[i]) == strings.TrimSpace(lines[i+2]) && blankAt(i+3) {
			return text, "o" + lines[i][:1], 3
		}
		return "", "", 0
	}
	if i+1 >= len(lines) || strings.HasPrefix(lines[i], " ") || strings.HasPrefix(lines[i], "\t") {
		return "", "", 0
	}
	text = strings.TrimSpace(lines[i])
	if text == "" || !isAdornment(lines[i+1]) || !long(lines[i+1], text) || !blankAt(i+2) {
		return "", "", 0
	}
	return text, "u" + strings.TrimSpace(lines[i+1])[:1], 2
}

// isAdornment reports whether line is a run of one punctuation character.
func isAdornment(line string) bool {
	line = strings.TrimRight(line, " \t\r\n")
	if len(line) < 3 {
		return false
	}
	c := line[0]
	if !strings.ContainsRune("=-~`'^\"*+#:._", rune(c)) {
		return false
	}
	for i := 1; i < len(line); i++ {
		if line[i] != c {
			return false
		}
	}
	return true
}
