package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileTypeOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"notes/daily.md", "markdown"},
		{"notes/README.MD", "markdown"},
		{"todo.txt", "text"},
		{"doc.rst", "text"},
		{"script.py", "text"},
		{"widget.tsx", "text"},
		{"page.html", "html"},
		{"data.json", "json"},
		{"table.csv", "csv"},
		{"paper.pdf", "pdf"},
		{"image.png", ""},
		{"binary", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FileTypeOf(tt.path))
		})
	}
}

func TestLoadMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "note.md", "# Title\n\nSome content.")

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "markdown", doc.FileType)
	assert.Equal(t, "# Title\n\nSome content.", doc.Content)
	assert.Equal(t, path, doc.Path)
	assert.False(t, doc.ModTime.IsZero())
}

func TestLoadHTML(t *testing.T) {
	dir := t.TempDir()
	html := `<html><head><style>body{color:red}</style></head>
<body><h1>Heading</h1><p>First &amp; second.</p>
<script>alert("nope")</script></body></html>`
	path := writeFile(t, dir, "page.html", html)

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Heading")
	assert.Contains(t, doc.Content, "First & second.")
	assert.NotContains(t, doc.Content, "alert")
	assert.NotContains(t, doc.Content, "color:red")
	assert.NotContains(t, doc.Content, "<p>")
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.json", `{"name":"test","items":[1,2]}`)

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, `"name": "test"`)
	assert.Contains(t, doc.Content, "\n")
}

func TestLoadJSONInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{not json`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "table.csv", "name,age\nalice,30\nbob,25\n")

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Columns: name, age")
	assert.Contains(t, doc.Content, "name: alice, age: 30")
	assert.Contains(t, doc.Content, "name: bob, age: 25")
}

func TestLoadCSVRowLimit(t *testing.T) {
	dir := t.TempDir()
	content := "id\n"
	for i := 0; i < 250; i++ {
		content += "row\n"
	}
	path := writeFile(t, dir, "big.csv", content)

	doc, err := Load(path)
	require.NoError(t, err)
	// Header line plus at most csvRowLimit data rows.
	lines := 0
	for _, c := range doc.Content {
		if c == '\n' {
			lines++
		}
	}
	assert.Equal(t, csvRowLimit+1, lines)
}

func TestLoadPDFUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.pdf", "%PDF-1.4 fake")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestLoadInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.txt")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00}, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestScanAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "# A")
	writeFile(t, dir, "sub/b.txt", "b content")
	writeFile(t, dir, ".hidden.md", "skip me")
	writeFile(t, dir, ".obsidian/config.json", `{}`)
	writeFile(t, dir, "node_modules/pkg/readme.md", "skip me")
	writeFile(t, dir, "image.png", "binary")

	docs, err := ScanAll(context.Background(), dir, Options{
		SkipDirs: map[string]bool{"node_modules": true, ".obsidian": true},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, filepath.Join(dir, "a.md"), docs[0].Path)
	assert.Equal(t, filepath.Join(dir, "sub", "b.txt"), docs[1].Path)
}

func TestScanAllSizeLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "small.md", "fits")
	writeFile(t, dir, "large.md", string(make([]byte, 64)))

	docs, err := ScanAll(context.Background(), dir, Options{MaxFileSize: 32})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, filepath.Join(dir, "small.md"), docs[0].Path)
}

func TestScanAllMissingRoot(t *testing.T) {
	_, err := ScanAll(context.Background(), "/nonexistent/vault", Options{})
	assert.Error(t, err)
}

func TestScanAllSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.md", "# ok")
	writeFile(t, dir, "bad.json", "{broken")

	docs, err := ScanAll(context.Background(), dir, Options{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "markdown", docs[0].FileType)
}

func TestEligible(t *testing.T) {
	skip := map[string]bool{"node_modules": true}
	root := "/vault"

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"supported file", "/vault/notes/a.md", true},
		{"unsupported ext", "/vault/notes/a.png", false},
		{"hidden file", "/vault/.hidden.md", false},
		{"hidden dir", "/vault/.obsidian/a.md", false},
		{"skipped dir", "/vault/node_modules/a.md", false},
		{"outside root", "/other/a.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(tt.path, root, skip))
		})
	}
}
