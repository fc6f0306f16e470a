// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package htmlmirror

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-digest/internal/httputil"
	"github.com/pdiddy/paper-digest/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

const paperHTML = `<!DOCTYPE html>
<html><head><title>x</title><style>.a{}</style><script>var x=1;</script></head>
<body>
<nav>Site navigation</nav>
<article class="ltx_document">
<h1>Scaling Things</h1>
<p>We use <math alttext="x^2" display="inline"><mi>x</mi></math> as the loss.</p>
<p><math alttext="E = mc^2" display="block"><mi>E</mi></math></p>
<figure id="F2">
  <img src="x2.png" alt="">
  <figcaption>Figure 2: Overview of the
     method.</figcaption>
</figure>
<figure id="F9">
  <img src="tiny.gif">
  <figcaption>Figure 9: A tiny icon.</figcaption>
</figure>
<figure id="T1">
  <figcaption>Table 1: Results.</figcaption>
  <table><tr><th>Model</th><th>Score</th></tr><tr><td>A</td><td>1</td></tr></table>
</figure>
<figure id="F3"><figcaption>Figure 3: Missing image.</figcaption></figure>
<figure id="S1">
  <img src="/static/plot.jpg?v=2">
  <figure><img src="inner.png"></figure>
</figure>
</article>
<footer>Footer text</footer>
</body></html>`

func newServer(t *testing.T) (*httptest.Server, map[string]int) {
	t.Helper()
	hits := make(map[string]int)
	big := bytes.Repeat([]byte{0x89}, 600)

	mux := http.NewServeMux()
	mux.HandleFunc("/html/2501.00001", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/html/2501.00001v2", http.StatusFound)
	})
	mux.HandleFunc("/html/2501.00001v2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(paperHTML))
	})
	mux.HandleFunc("/html/2501.00001v2/x2.png", func(w http.ResponseWriter, r *http.Request) {
		hits["x2"]++
		w.Write(big)
	})
	mux.HandleFunc("/html/2501.00001v2/tiny.gif", func(w http.ResponseWriter, r *http.Request) {
		hits["tiny"]++
		w.Write([]byte("GIF89a"))
	})
	mux.HandleFunc("/static/plot.jpg", func(w http.ResponseWriter, r *http.Request) {
		hits["plot"]++
		w.Write(big)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, hits
}

func TestFetch(t *testing.T) {
	ts, hits := newServer(t)
	dir := t.TempDir()

	m := New(ts.Client(), types.ArxivConfig{BaseURL: ts.URL}, nil)
	doc, err := m.Fetch(t.Context(), "2501.00001", dir)
	require.NoError(t, err)

	assert.Equal(t, types.SourceHTML, doc.Source)
	assert.Equal(t, []types.Figure{
		{Name: "fig2.png", Caption: "Figure 2: Overview of the method."},
		{Name: "fig1.jpg"},
	}, doc.Figures)
	assert.Equal(t, 1, hits["x2"])
	assert.Equal(t, 1, hits["tiny"])
	assert.Equal(t, 1, hits["plot"])

	for _, name := range []string{"fig2.png", "fig1.jpg"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.EqualValues(t, 600, info.Size())
	}
	_, err = os.Stat(filepath.Join(dir, "fig9.gif"))
	assert.True(t, os.IsNotExist(err), "images at or under the size floor are dropped")

	md := doc.Markdown
	assert.Contains(t, md, "# Scaling Things")
	assert.Contains(t, md, "$x^2$")
	assert.Contains(t, md, "$$E = mc^2$$")
	assert.Contains(t, md, "Figure 2: Overview of the method.")
	assert.Contains(t, md, "[FIGURE_CAPTION] Figure 9: A tiny icon.")
	assert.Contains(t, md, "[FIGURE_CAPTION] Figure 3: Missing image.")
	assert.Contains(t, md, "Table 1: Results.")
	assert.Contains(t, md, "Model")
	assert.Contains(t, md, "Score")
	assert.NotContains(t, md, "Site navigation")
	assert.NotContains(t, md, "Footer text")
	assert.NotContains(t, md, "var x")
	assert.NotContains(t, md, "\n\n\n")
}

func TestFetch_NoHTML(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	m := New(ts.Client(), types.ArxivConfig{BaseURL: ts.URL}, nil)
	_, err := m.Fetch(t.Context(), "2501.99999", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoHTML))
}

func TestFigureNumber(t *testing.T) {
	used := map[int]bool{}
	next := 1

	n := figureNumber("Figure 3: a", used, &next)
	assert.Equal(t, 3, n)
	used[n] = true

	n = figureNumber("Figure 3: duplicate", used, &next)
	assert.Equal(t, 1, n)
	used[n] = true

	n = figureNumber("", used, &next)
	assert.Equal(t, 2, n)
	used[n] = true

	n = figureNumber("no number", used, &next)
	assert.Equal(t, 4, n, "skips numbers already taken by captions")
}

func TestImageExt(t *testing.T) {
	tests := map[string]string{
		"x1.png":               ".png",
		"a/b/PLOT.JPG":         ".jpg",
		"img.webp?raw=1":       ".webp",
		"vector.svg":           ".svg",
		"figure.bmp":           ".png",
		"noext":                ".png",
		"https://h/x/y.jpeg#f": ".jpeg",
	}
	for src, want := range tests {
		assert.Equal(t, want, imageExt(src), src)
	}
}
