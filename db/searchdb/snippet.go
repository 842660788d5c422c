package searchdb

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2/search"
)

const snippetContext = 100

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".go": true, ".js": true, ".ts": true, ".py": true,
	".java": true, ".cpp": true, ".c": true, ".h": true, ".css": true, ".cs": true,
	".html": true, ".htm": true, ".xml": true, ".json": true, ".yaml": true,
	".yml": true, ".sh": true, ".bash": true, ".sql": true, ".log": true,
	".conf": true, ".cfg": true, ".ini": true, ".toml": true, ".rs": true,
	".rb": true, ".php": true, ".swift": true, ".kt": true, ".scala": true,
	".lua": true, ".shader": true, ".hlsl": true, ".glsl": true, ".tex": true,
	".csv": true, ".env": true, ".gitignore": true, ".editorconfig": true,
}

// IsTextFile reports whether path looks like a text file by its extension.
func IsTextFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if textExtensions[ext] {
		return true
	}

	return strings.HasPrefix(mime.TypeByExtension(ext), "text/")
}

// extractSnippet reads the text around the first content match straight
// from the file, since content is not stored in the index.
func (b *BleveDB) extractSnippet(path string, locations search.FieldTermLocationMap) string {
	termLocations, ok := locations[indexFieldContent]
	if !ok || len(termLocations) == 0 || !IsTextFile(path) {
		return ""
	}

	var first *search.Location
	for _, locs := range termLocations {
		for _, loc := range locs {
			if loc != nil && (first == nil || loc.Start < first.Start) {
				first = loc
			}
		}
	}
	if first == nil {
		return ""
	}

	snippet, err := readSnippet(path, int64(first.Start), int64(first.End))
	if err != nil {
		b.logger.Warn("failed to extract snippet from file", "path", path, "err", err.Error())
		return ""
	}

	return snippet
}

func readSnippet(path string, matchStart int64, matchEnd int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", err
	}
	fileSize := info.Size()

	// The file changed since it was indexed.
	if matchStart >= fileSize {
		return "", nil
	}
	matchEnd = min(matchEnd, fileSize)

	start := max(0, matchStart-snippetContext)
	end := min(fileSize, matchEnd+snippetContext)

	buffer := make([]byte, end-start)
	if _, err := file.ReadAt(buffer, start); err != nil && err != io.EOF {
		return "", err
	}

	return formatSnippet(string(buffer), start, end, fileSize), nil
}

func formatSnippet(snippet string, start int64, end int64, fileSize int64) string {
	snippet = strings.Join(strings.Fields(snippet), " ")
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < fileSize {
		snippet = snippet + "..."
	}

	return snippet
}
