// Package registry maps model identifiers to retriever constructors.
//
// Keys are exact model names or doublestar patterns ("vidore/colpali*").
// Resolution: an exact key wins; otherwise exactly one matching pattern wins;
// no match or several matching patterns is an error. Registering a key twice
// replaces the earlier constructor and logs a warning.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	vidore "github.com/JarvisUSTC/vidore-benchmark"
	"github.com/JarvisUSTC/vidore-benchmark/device"
)

var (
	ErrUnknownRetriever   = errors.New("unknown retriever")
	ErrAmbiguousRetriever = errors.New("ambiguous retriever")
)

// Options is passed to every constructor
type Options struct {
	// ModelName is the identifier that was resolved
	ModelName string
	// ModelDir holds the exported model files for ModelName
	ModelDir string
	// Device is resolved once by the caller
	Device device.Device
	// Logger receives construction logs; nil means slog.Default()
	Logger *slog.Logger
}

// Constructor builds a retriever
type Constructor func(opts Options) (vidore.Retriever, error)

// UnknownRetrieverError reports an identifier matching no entry
type UnknownRetrieverError struct {
	ID    string
	Known []string
}

func (e *UnknownRetrieverError) Error() string {
	return fmt.Sprintf("unknown retriever %q (registered: %s)", e.ID, strings.Join(e.Known, ", "))
}

func (e *UnknownRetrieverError) Unwrap() error { return ErrUnknownRetriever }

// AmbiguousRetrieverError reports an identifier matching several patterns
type AmbiguousRetrieverError struct {
	ID         string
	Candidates []string
}

func (e *AmbiguousRetrieverError) Error() string {
	return fmt.Sprintf("ambiguous retriever %q matches %s", e.ID, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousRetrieverError) Unwrap() error { return ErrAmbiguousRetriever }

// Registry is a process-wide identifier → constructor table. It only grows.
type Registry struct {
	entries map[string]Constructor
	logger  *slog.Logger
	mu      sync.RWMutex
}

// New creates an empty registry
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]Constructor),
		logger:  logger,
	}
}

// Register adds a constructor under an exact identifier or pattern
func (r *Registry) Register(pattern string, c Constructor) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty retriever identifier", vidore.ErrInvalidInput)
	}
	if c == nil {
		return fmt.Errorf("%w: nil constructor for %q", vidore.ErrInvalidInput, pattern)
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("%w: invalid retriever pattern %q", vidore.ErrInvalidInput, pattern)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[pattern]; exists {
		r.logger.Warn("overwriting registered retriever", "identifier", pattern)
	}
	r.entries[pattern] = c
	return nil
}

// Resolve returns the constructor for a model identifier
func (r *Registry) Resolve(id string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.entries[id]; ok {
		return c, nil
	}

	var candidates []string
	for pattern := range r.entries {
		if !isPattern(pattern) {
			continue
		}
		if ok, _ := doublestar.Match(pattern, id); ok {
			candidates = append(candidates, pattern)
		}
	}
	slices.Sort(candidates)

	switch len(candidates) {
	case 0:
		return nil, &UnknownRetrieverError{ID: id, Known: r.listLocked()}
	case 1:
		return r.entries[candidates[0]], nil
	default:
		return nil, &AmbiguousRetrieverError{ID: id, Candidates: candidates}
	}
}

// Create resolves id and builds the retriever
func (r *Registry) Create(id string, opts Options) (vidore.Retriever, error) {
	c, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	opts.ModelName = id
	if opts.Logger == nil {
		opts.Logger = r.logger
	}
	retriever, err := c(opts)
	if err != nil {
		return nil, fmt.Errorf("create retriever %q: %w", id, err)
	}
	return retriever, nil
}

// List returns every registered identifier, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{\\")
}
