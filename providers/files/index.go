package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/services/index"
	"github.com/meghashyamc/omnisearch/services/tracker"
	"golang.org/x/time/rate"
)

var ErrIndexNotReady = errors.New("file index is not ready")

// DocFlags describe a document.
type DocFlags uint8

const (
	FlagDir DocFlags = 1 << iota
)

// Document is one indexed path. Score is the base rank of the path before
// any query is applied; shallower paths rank first.
type Document struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Score int64    `json:"score"`
	Flags DocFlags `json:"flags"`
	Dir   string   `json:"dir"`
	Ext   string   `json:"ext"`
	Size  int64    `json:"size"`
}

func (d Document) IsDir() bool { return d.Flags&FlagDir != 0 }

// Index is the document index over a set of directory roots. The first scan
// runs in the background; later scans replace the documents wholesale and
// single paths are patched in place as changes arrive.
type Index struct {
	logger  logger.Logger
	roots   []string
	exclude map[string]struct{}
	limiter *rate.Limiter

	mu    sync.RWMutex
	docs  map[string]Document
	ready chan struct{}
	once  sync.Once

	stale   atomic.Bool
	rescanC chan struct{}
}

func NewIndex(logger logger.Logger, roots []string, exclude []string, rescanPerSecond float64) *Index {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if abs, err := filepath.Abs(root); err == nil {
			cleaned = append(cleaned, abs)
		}
	}
	excludeSet := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		excludeSet[filepath.Clean(e)] = struct{}{}
	}
	if rescanPerSecond <= 0 {
		rescanPerSecond = 0.2
	}

	return &Index{
		logger:  logger,
		roots:   cleaned,
		exclude: excludeSet,
		limiter: rate.NewLimiter(rate.Limit(rescanPerSecond), 1),
		docs:    make(map[string]Document),
		ready:   make(chan struct{}),
		rescanC: make(chan struct{}, 1),
	}
}

// Start runs the initial scan and then rescans whenever the index is
// marked stale, no more often than the rescan rate allows.
func (x *Index) Start(ctx context.Context) {
	go func() {
		x.rescan()
		for {
			select {
			case <-x.rescanC:
				if err := x.limiter.Wait(ctx); err != nil {
					return
				}
				x.rescan()
			case <-ctx.Done():
				x.logger.Info("file index stopped", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (x *Index) Roots() []string { return slices.Clone(x.roots) }

// Ready is closed once the first scan has finished.
func (x *Index) Ready() <-chan struct{} { return x.ready }

func (x *Index) IsReady() bool {
	select {
	case <-x.ready:
		return true
	default:
		return false
	}
}

func (x *Index) Stale() bool { return x.stale.Load() }

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Documents returns the documents ordered by path.
func (x *Index) Documents() []Document {
	x.mu.RLock()
	docs := make([]Document, 0, len(x.docs))
	for _, doc := range x.docs {
		docs = append(docs, doc)
	}
	x.mu.RUnlock()

	slices.SortFunc(docs, func(a, b Document) int { return strings.Compare(a.ID, b.ID) })
	return docs
}

func (x *Index) Get(path string) (Document, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	doc, ok := x.docs[path]
	return doc, ok
}

func (x *Index) Covers(path string) bool {
	return x.rootOf(path) != ""
}

func (x *Index) MarkStale() {
	x.stale.Store(true)
	select {
	case x.rescanC <- struct{}{}:
	default:
	}
}

// Patch applies a change to single paths. Updated paths are re-read from
// disk, deleted paths are dropped along with everything below them and
// moved paths are dropped or re-read depending on whether they still exist.
func (x *Index) Patch(change tracker.Change) error {
	if !x.IsReady() {
		return ErrIndexNotReady
	}

	for _, path := range change.Deleted {
		x.remove(filepath.Clean(path))
	}
	for _, path := range append(slices.Clone(change.Updated), change.Moved...) {
		path = filepath.Clean(path)
		info, err := os.Lstat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			x.remove(path)
		case err != nil:
			return fmt.Errorf("could not stat %s: %w", path, err)
		default:
			if err := x.put(path, info); err != nil {
				return err
			}
		}
	}
	return nil
}

// put indexes path. A directory brings everything below it along, since a
// directory created or moved into a root arrives as a single event.
func (x *Index) put(path string, info fs.FileInfo) error {
	root := x.rootOf(path)
	if root == "" || path == root || x.skipped(root, path) {
		return nil
	}
	if !info.IsDir() {
		x.mu.Lock()
		x.docs[path] = newDocument(root, path, info)
		x.mu.Unlock()
		return nil
	}

	docs := make(map[string]Document)
	if err := x.walk(root, path, docs); err != nil {
		return fmt.Errorf("could not walk %s: %w", path, err)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, doc := range docs {
		x.docs[id] = doc
	}
	return nil
}

func (x *Index) remove(path string) {
	prefix := path + string(filepath.Separator)
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, path)
	for id := range x.docs {
		if strings.HasPrefix(id, prefix) {
			delete(x.docs, id)
		}
	}
}

func (x *Index) rescan() {
	docs := make(map[string]Document)
	for _, root := range x.roots {
		if err := x.scanRoot(root, docs); err != nil {
			x.logger.Error("failed to scan root", "root", root, "err", err.Error())
		}
	}

	x.mu.Lock()
	x.docs = docs
	x.mu.Unlock()
	x.stale.Store(false)
	x.once.Do(func() { close(x.ready) })
	x.logger.Info("scanned file roots", "roots", len(x.roots), "documents", len(docs))
}

func (x *Index) scanRoot(root string, docs map[string]Document) error {
	return x.walk(root, root, docs)
}

// walk adds every path at and below start to docs, except root itself.
func (x *Index) walk(root, start string, docs map[string]Document) error {
	return filepath.WalkDir(start, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == start {
				return err
			}
			x.logger.Warn("could not walk path", "path", path, "err", err.Error())
			return nil
		}
		if path == root {
			return nil
		}
		if x.skipped(root, path) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		docs[path] = newDocument(root, path, info)
		return nil
	})
}

// skipped reports whether path or any directory between it and root is
// hidden or excluded.
func (x *Index) skipped(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return true
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		if strings.HasPrefix(part, ".") || index.IsExcluded(current, x.exclude) {
			return true
		}
	}
	return false
}

func (x *Index) rootOf(path string) string {
	path = filepath.Clean(path)
	best := ""
	for _, root := range x.roots {
		if (path == root || strings.HasPrefix(path, root+string(filepath.Separator))) && len(root) > len(best) {
			best = root
		}
	}
	return best
}

func newDocument(root, path string, info fs.FileInfo) Document {
	rel, _ := filepath.Rel(root, path)
	doc := Document{
		ID:    path,
		Name:  info.Name(),
		Score: int64(strings.Count(rel, string(filepath.Separator))),
		Dir:   filepath.Dir(path),
	}
	if info.IsDir() {
		doc.Flags |= FlagDir
		return doc
	}
	doc.Ext = strings.TrimPrefix(strings.ToLower(filepath.Ext(doc.Name)), ".")
	doc.Size = info.Size()
	return doc
}
