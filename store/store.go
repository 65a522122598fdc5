// Package store implements the pipeline image store (C8): an
// in-memory, mutex-guarded map of PipelineImages keyed by their
// structural hash, plus string aliases resolving to a hash, and the
// default in-memory suspension store a run falls back to when it
// can't make progress.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/loom-run/loom/ir"
)

// NotFoundError is returned by Get/Remove/GetByName for an unknown
// hash or alias.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("pipeline %q not found", e.Ref) }

// Store is a process-wide, linearizable reference cell for compiled
// pipelines, grounded on the same Register/Get/List shape the teacher
// corpus's dag.Registry uses for named node lookup.
type Store struct {
	mu      sync.RWMutex
	images  map[string]*ir.PipelineImage // structuralHash -> image
	aliases map[string]string            // alias -> structuralHash
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		images:  make(map[string]*ir.PipelineImage),
		aliases: make(map[string]string),
	}
}

// Put records image, keyed by its StructuralHash. Re-storing the same
// hash overwrites the prior image (e.g. a recompile with updated
// CompiledAt).
func (s *Store) Put(image *ir.PipelineImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[image.StructuralHash] = image
}

// Get looks up an image by its exact structural hash.
func (s *Store) Get(hash string) (*ir.PipelineImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[hash]
	if !ok {
		return nil, &NotFoundError{Ref: hash}
	}
	return img, nil
}

// Remove deletes the image at hash and any aliases pointing to it.
func (s *Store) Remove(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[hash]; !ok {
		return &NotFoundError{Ref: hash}
	}
	delete(s.images, hash)
	for name, h := range s.aliases {
		if h == hash {
			delete(s.aliases, name)
		}
	}
	return nil
}

// Alias binds name to hash, overwriting any prior binding for name.
// Aliasing a hash that isn't (yet) stored is allowed — the binding
// resolves once the image is Put.
func (s *Store) Alias(name, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[name] = hash
}

// Resolve returns the hash name is bound to, if any.
func (s *Store) Resolve(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.aliases[name]
	return hash, ok
}

// GetByName resolves name to a hash and returns the image it points
// to. Combined with Get, this is what the run surface calls for a
// bare alias reference.
func (s *Store) GetByName(name string) (*ir.PipelineImage, error) {
	hash, ok := s.Resolve(name)
	if !ok {
		return nil, &NotFoundError{Ref: name}
	}
	return s.Get(hash)
}

// ImageSummary is the listing projection returned by ListImages.
type ImageSummary struct {
	StructuralHash string
	SyntacticHash  string
}

// ListImages returns every stored image's hashes, sorted by
// structural hash for deterministic output.
func (s *Store) ListImages() []ImageSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ImageSummary, 0, len(s.images))
	for hash, img := range s.images {
		out = append(out, ImageSummary{StructuralHash: hash, SyntacticHash: img.SyntacticHash})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StructuralHash < out[j].StructuralHash })
	return out
}

// AliasSummary is one alias->hash binding returned by ListAliases.
type AliasSummary struct {
	Name string
	Hash string
}

// ListAliases returns every alias binding, sorted by name.
func (s *Store) ListAliases() []AliasSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AliasSummary, 0, len(s.aliases))
	for name, hash := range s.aliases {
		out = append(out, AliasSummary{Name: name, Hash: hash})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveReference resolves a pipeline reference string: either
// "sha256:<hexhash>" (passed to Get unchanged, prefix included, since
// PipelineImage.StructuralHash carries it) or a bare alias.
func (s *Store) ResolveReference(ref string) (*ir.PipelineImage, error) {
	if len(ref) > 7 && ref[:7] == "sha256:" {
		return s.Get(ref)
	}
	return s.GetByName(ref)
}
