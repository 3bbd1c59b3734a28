package extract

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// FileTypeOf returns the logical file type for a path, or "" if the
// extension is not supported.
func FileTypeOf(path string) string {
	return fileTypes[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether the file at path has a known extractor.
func Supported(path string) bool {
	return FileTypeOf(path) != ""
}

// Load reads and extracts a single file into a Document.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	fileType := FileTypeOf(path)
	if fileType == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	content, err := extractContent(raw, fileType)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", path, err)
	}

	return &Document{
		Path:     path,
		Content:  content,
		FileType: fileType,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}, nil
}

func extractContent(raw []byte, fileType string) (string, error) {
	switch fileType {
	case "markdown", "text":
		return extractText(raw)
	case "html":
		return extractHTML(raw)
	case "json":
		return extractJSON(raw)
	case "csv":
		return extractCSV(raw)
	case "pdf":
		// PDF text extraction needs a native renderer; not wired yet.
		return "", fmt.Errorf("pdf extraction not available: %w", ErrUnsupported)
	default:
		return "", ErrUnsupported
	}
}

func extractText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("file is not valid UTF-8")
	}
	return string(raw), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// extractHTML strips markup and returns the visible text, collapsing
// runs of blank lines.
func extractHTML(raw []byte) (string, error) {
	text := scriptRe.ReplaceAllString(string(raw), "")
	text = tagRe.ReplaceAllString(text, "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(unescapeHTML(text)), nil
}

var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

func unescapeHTML(s string) string {
	return htmlEntities.Replace(s)
}

// extractJSON re-renders the document with indentation so nested values
// land on separate lines for chunking.
func extractJSON(raw []byte) (string, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render JSON: %w", err)
	}
	return string(pretty), nil
}

// extractCSV renders the header plus at most csvRowLimit data rows as
// "col: value" lines per record.
func extractCSV(raw []byte) (string, error) {
	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return "", nil
		}
		return "", fmt.Errorf("invalid CSV: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Columns: " + strings.Join(header, ", ") + "\n")

	rows := 0
	for rows < csvRowLimit {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("invalid CSV row: %w", err)
		}
		var fields []string
		for i, value := range record {
			name := fmt.Sprintf("col%d", i+1)
			if i < len(header) {
				name = header[i]
			}
			fields = append(fields, name+": "+value)
		}
		sb.WriteString(strings.Join(fields, ", ") + "\n")
		rows++
	}
	return sb.String(), nil
}
