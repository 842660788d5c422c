package index

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meghashyamc/omnisearch/db/kvdb"
	"github.com/meghashyamc/omnisearch/db/searchdb"
)

// maxContentSize caps how much of a text file is read into the index.
const maxContentSize = 10 * 1024 * 1024

type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	IsText  bool
}

func (s *Service) discoverModifiedFiles(rootPath string, excludeFolders []string) ([]FileInfo, error) {
	var modifiedFiles []FileInfo
	excludeSet := make(map[string]struct{}, len(excludeFolders))
	for _, folder := range excludeFolders {
		excludeSet[filepath.Clean(folder)] = struct{}{}
	}

	err := filepath.WalkDir(rootPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Error("could not walk through file or directory", "path", path, "err", err.Error())
			if errors.Is(err, fs.ErrPermission) && path != rootPath {
				return nil
			}
			return err
		}

		if entry.IsDir() {
			if path != rootPath && (strings.HasPrefix(entry.Name(), ".") || IsExcluded(path, excludeSet)) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(entry.Name(), ".") || !entry.Type().IsRegular() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			// Removed during the walk.
			return nil
		}

		if s.shouldFileBeIndexed(path, info) {
			modifiedFiles = append(modifiedFiles, FileInfo{
				Path:    path,
				Name:    info.Name(),
				Size:    info.Size(),
				ModTime: info.ModTime(),
				IsText:  searchdb.IsTextFile(path),
			})
		}

		return nil
	})

	return modifiedFiles, err
}

func (s *Service) shouldFileBeIndexed(path string, info fs.FileInfo) bool {
	metadata, err := s.getFileMetadata(path)
	if err != nil {
		if !errors.Is(err, kvdb.ErrNotFound) {
			s.logger.Error("failed to get metadata, reindexing file", "path", path, "err", err.Error())
		}
		return true
	}

	return info.ModTime().After(metadata.LastIndexed) || info.Size() != metadata.Size
}

// IsExcluded reports whether a directory is excluded either by its full
// path or by its base name.
func IsExcluded(path string, excludeSet map[string]struct{}) bool {
	if len(excludeSet) == 0 {
		return false
	}
	if _, ok := excludeSet[path]; ok {
		return true
	}
	_, ok := excludeSet[filepath.Base(path)]
	return ok
}

// extractDocument builds the index record for a file. Only text files
// contribute content; other files are found by name and path.
func extractDocument(file FileInfo) (searchdb.Document, error) {
	doc := searchdb.Document{
		ID:      file.Path,
		Path:    file.Path,
		Name:    file.Name,
		Ext:     strings.ToLower(filepath.Ext(file.Name)),
		Size:    file.Size,
		ModTime: file.ModTime,
	}

	if file.IsText {
		content, err := readTextFile(file.Path)
		if err != nil {
			return searchdb.Document{}, err
		}
		doc.Content = content
	}

	return doc, nil
}

func readTextFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxContentSize))
	if err != nil {
		return "", err
	}

	return string(content), nil
}
