package objects

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"

	"github.com/meghashyamc/omnisearch/logger"
	"gopkg.in/yaml.v3"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
	ErrInvalidParent  = errors.New("invalid parent")
)

// Object is one node of the live object graph. Parent is zero for roots.
// Refs hold references in any of the forms canonicalRef understands.
type Object struct {
	ID         int64    `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Type       string   `yaml:"type" json:"type"`
	Tags       []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Layer      int64    `yaml:"layer" json:"layer"`
	Components []string `yaml:"components,omitempty" json:"components,omitempty"`
	Parent     int64    `yaml:"parent,omitempty" json:"parent,omitempty"`
	Refs       []string `yaml:"refs,omitempty" json:"refs,omitempty"`
}

// Key is the identity the object is cached and tracked under.
func (o Object) Key() string {
	return strconv.FormatInt(o.ID, 10)
}

type scene struct {
	Objects []Object `yaml:"objects"`
}

// Notifier receives the identities touched by a mutation.
type Notifier interface {
	OnChanged(updated, deleted, moved []string)
}

// Graph is the in-memory object graph. It is safe for concurrent use.
// Readers get copies, so a search never observes a half-applied mutation.
type Graph struct {
	logger   logger.Logger
	notifier Notifier

	mu    sync.RWMutex
	byID  map[int64]Object
	order []int64
}

func NewGraph(logger logger.Logger, notifier Notifier, objects ...Object) (*Graph, error) {
	g := &Graph{
		logger:   logger,
		notifier: notifier,
		byID:     make(map[int64]Object, len(objects)),
	}
	for _, obj := range objects {
		if _, exists := g.byID[obj.ID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrObjectExists, obj.ID)
		}
		g.byID[obj.ID] = obj
		g.order = append(g.order, obj.ID)
	}
	return g, nil
}

// LoadScene reads a YAML scene file of the form {objects: [...]}.
func LoadScene(logger logger.Logger, notifier Notifier, path string) (*Graph, error) {
	file, err := os.Open(path)
	if err != nil {
		logger.Error("failed to open scene file", "path", path, "err", err.Error())
		return nil, fmt.Errorf("failed to open scene file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var s scene
	if err := decoder.Decode(&s); err != nil {
		logger.Error("failed to decode scene file", "path", path, "err", err.Error())
		return nil, fmt.Errorf("failed to decode scene file %s: %w", path, err)
	}

	graph, err := NewGraph(logger, notifier, s.Objects...)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded scene", "path", path, "objects", len(s.Objects))
	return graph, nil
}

func (g *Graph) Snapshot() []Object {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Object, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.byID[id])
	}
	return out
}

func (g *Graph) Get(id int64) (Object, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	obj, ok := g.byID[id]
	return obj, ok
}

func (g *Graph) Exists(id int64) bool {
	_, ok := g.Get(id)
	return ok
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

func (g *Graph) Add(obj Object) error {
	g.mu.Lock()
	if _, exists := g.byID[obj.ID]; exists {
		g.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrObjectExists, obj.ID)
	}
	g.byID[obj.ID] = obj
	g.order = append(g.order, obj.ID)
	g.mu.Unlock()

	// A new object can resolve references other objects flagged as missing.
	g.notify(nil, nil, []string{obj.Key()})
	return nil
}

// Update replaces an object's fields other than its parent.
func (g *Graph) Update(obj Object) error {
	g.mu.Lock()
	old, ok := g.byID[obj.ID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrObjectNotFound, obj.ID)
	}
	obj.Parent = old.Parent
	g.byID[obj.ID] = obj
	g.mu.Unlock()

	if old.Name != obj.Name {
		// Descendant paths embed the name.
		g.notify(nil, nil, []string{obj.Key()})
		return nil
	}
	g.notify([]string{obj.Key()}, nil, nil)
	return nil
}

// Move reparents an object. A zero parent makes it a root.
func (g *Graph) Move(id int64, parent int64) error {
	g.mu.Lock()
	obj, ok := g.byID[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrObjectNotFound, id)
	}
	if parent != 0 {
		if _, ok := g.byID[parent]; !ok {
			g.mu.Unlock()
			return fmt.Errorf("%w: %d does not exist", ErrInvalidParent, parent)
		}
		if g.isDescendantLocked(parent, id) {
			g.mu.Unlock()
			return fmt.Errorf("%w: %d is a descendant of %d", ErrInvalidParent, parent, id)
		}
	}
	obj.Parent = parent
	g.byID[id] = obj
	g.mu.Unlock()

	g.notify(nil, nil, []string{obj.Key()})
	return nil
}

// Delete removes an object. Its children become roots.
func (g *Graph) Delete(id int64) error {
	g.mu.Lock()
	obj, ok := g.byID[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrObjectNotFound, id)
	}
	delete(g.byID, id)
	g.order = slices.DeleteFunc(g.order, func(other int64) bool { return other == id })

	var moved []string
	for _, childID := range g.order {
		child := g.byID[childID]
		if child.Parent == id {
			child.Parent = 0
			g.byID[childID] = child
			moved = append(moved, child.Key())
		}
	}
	g.mu.Unlock()

	g.notify(nil, []string{obj.Key()}, moved)
	return nil
}

// isDescendantLocked reports whether id sits below ancestor.
func (g *Graph) isDescendantLocked(id, ancestor int64) bool {
	seen := make(map[int64]bool)
	for id != 0 && !seen[id] {
		if id == ancestor {
			return true
		}
		seen[id] = true
		id = g.byID[id].Parent
	}
	return false
}

func (g *Graph) notify(updated, deleted, moved []string) {
	if g.notifier == nil {
		return
	}
	g.notifier.OnChanged(updated, deleted, moved)
}
