package snapshot

import (
	"bytes"
	"strings"
	"text/template"
	"time"
)

// DefaultFilenameTemplate names files {kind}-{format}-{timestamp}.
const DefaultFilenameTemplate = "{{.Kind}}-{{.Format}}-{{.Timestamp}}"

type filenameData struct {
	Kind      string
	Format    string
	Timestamp string
	Date      string
	JobID     string
}

// RenderFilename renders a filename template and appends the output
// extension when missing.
func RenderFilename(pattern string, doc VisualDocument, format ExportFormatSpec, jobID string, now time.Time) (string, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultFilenameTemplate
	}
	kind := doc.Kind
	if kind == "" {
		kind = "document"
	}

	data := filenameData{
		Kind:      kind,
		Format:    string(format.ID),
		Timestamp: now.UTC().Format("20060102T150405Z"),
		Date:      now.UTC().Format("20060102"),
		JobID:     jobID,
	}

	tmpl, err := template.New("filename").Parse(pattern)
	if err != nil {
		return "", NewError(KindValidation, "invalid filename template", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", NewError(KindValidation, "render filename", err)
	}

	result := sanitizeFilename(buf.String())
	if result == "" {
		return "", NewError(KindValidation, "empty filename", nil)
	}

	ext := "." + string(format.Output)
	if !strings.HasSuffix(strings.ToLower(result), ext) {
		result += ext
	}
	return result, nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	return strings.Trim(name, ". ")
}
