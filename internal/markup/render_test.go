package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Titles(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantTitle string
	}{
		{"rst underline", "Alpha\n=====\n\nThe alpha project.\n", "Alpha"},
		{"rst overline", "=====\nAlpha\n=====\n\nThe alpha project.\n", "Alpha"},
		{"rst tilde underline", "Alpha\n~~~~~\n\nThe alpha project.\n", "Alpha"},
		{"markdown atx", "# Alpha\n\nThe alpha project.\n", "Alpha"},
		{"markdown with emphasis", "# The *Alpha* project\n\nbody\n", "The Alpha project"},
		{"front matter wins", "---\ntitle: Custom\n---\n# Alpha\n\nbody\n", "Custom"},
		{"rst dash overline", "---\nAlpha\n---\n\nThe alpha project.\n", "Alpha"},
		{"leading blank lines", "\n\nAlpha\n=====\n\nbody\n", "Alpha"},
		{"no title", "Just a paragraph.\n", ""},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := r.Render([]byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, doc.Title)
		})
	}
}

func TestRender_BodyExcludesTitleAndShiftsHeadings(t *testing.T) {
	src := "Alpha\n=====\n\nIntro text.\n\nUsage\n-----\n\nRun it.\n"

	doc, err := New().Render([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "Alpha", doc.Title)
	assert.NotContains(t, doc.Body, "<h1>")
	assert.Contains(t, doc.Body, "<p>Intro text.</p>")
	assert.Contains(t, doc.Body, "<h3>Usage</h3>")
}

func TestRender_RSTSectionLevels(t *testing.T) {
	src := "Alpha\n=====\n\nIntro.\n\n" +
		"Install\n~~~~~~~\n\nSteps.\n\n" +
		"Details\n^^^^^^^\n\nMore.\n\n" +
		"Usage\n~~~~~\n\nRun.\n\n" +
		"```\nnot\n~~~\n\n```\n"

	doc, err := New().Render([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "Alpha", doc.Title)
	assert.Contains(t, doc.Body, "<h3>Install</h3>")
	assert.Contains(t, doc.Body, "<h4>Details</h4>")
	assert.Contains(t, doc.Body, "<h3>Usage</h3>")
	assert.Contains(t, doc.Body, "not\n~~~\n")
	assert.NotContains(t, doc.Body, "<h3>not</h3>")
}

func TestRender_EscapesRawHTML(t *testing.T) {
	doc, err := New().Render([]byte("# T\n\n<script>alert(1)</script>\n"))
	require.NoError(t, err)
	assert.NotContains(t, doc.Body, "<script>")
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
	}{
		{"invalid utf8", []byte{0xff, 0xfe, 'a'}},
		{"broken front matter", []byte("---\ntitle: [unclosed\n---\nbody\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Render(tt.src)
			var re *RenderError
			assert.ErrorAs(t, err, &re)
		})
	}
}

func TestIsAdornment(t *testing.T) {
	assert.True(t, isAdornment("=====\n"))
	assert.True(t, isAdornment("~~~"))
	assert.False(t, isAdornment("=="))
	assert.False(t, isAdornment("=-="))
	assert.False(t, isAdornment("abc"))
}
