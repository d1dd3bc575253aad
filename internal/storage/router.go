package storage

import (
	"context"
	"fmt"
	"sort"
)

// LargeFileThreshold is the size above which routing prefers the provider
// with the lowest egress cost.
const LargeFileThreshold = 64 << 20

// Backend moves encrypted bytes to and from one provider.
type Backend interface {
	// Upload stores body under a fresh object key and returns the pointer.
	// The object is durably stored iff the call returns nil.
	Upload(ctx context.Context, body []byte) (pointer string, err error)
	// Download fetches the object behind pointer.
	Download(ctx context.Context, pointer string) ([]byte, error)
	// Delete removes the object behind pointer.
	Delete(ctx context.Context, pointer string) error
}

// Router picks a provider per file by size/cost policy and dispatches to the
// backend registered for it. Backends are injected at construction; the
// router holds no hidden process-wide state.
type Router struct {
	specs    map[Provider]Spec
	backends map[Provider]Backend
}

func NewRouter(specs map[Provider]Spec, backends map[Provider]Backend) *Router {
	if specs == nil {
		specs = DefaultSpecs()
	}
	return &Router{specs: specs, backends: backends}
}

// Select returns the provider for a file of the given size and MIME type.
// Deterministic: a hard size ceiling rules a provider out entirely; large
// files prefer lowest egress cost; ties break by declared priority.
func (r *Router) Select(size int64, mimeType string) (Provider, error) {
	var candidates []Provider
	for _, p := range Providers {
		spec, ok := r.specs[p]
		if !ok {
			continue
		}
		if spec.MaxFileSize > 0 && size > spec.MaxFileSize {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return 0, &StorageError{Retryable: false, Err: fmt.Errorf("no provider accepts %d byte file", size)}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := r.specs[candidates[i]], r.specs[candidates[j]]
		if size > LargeFileThreshold && si.EgressCostPerGB != sj.EgressCostPerGB {
			return si.EgressCostPerGB < sj.EgressCostPerGB
		}
		return si.Priority < sj.Priority
	})

	return candidates[0], nil
}

// Backend returns the backend registered for p.
func (r *Router) Backend(p Provider) (Backend, error) {
	b, ok := r.backends[p]
	if !ok {
		return nil, &StorageError{Provider: p, Retryable: false, Err: fmt.Errorf("no backend registered for %s", p)}
	}
	return b, nil
}

// Upload stores body on provider p.
func (r *Router) Upload(ctx context.Context, p Provider, body []byte) (string, error) {
	b, err := r.Backend(p)
	if err != nil {
		return "", err
	}
	return b.Upload(ctx, body)
}

// Download fetches bytes from provider p.
func (r *Router) Download(ctx context.Context, p Provider, pointer string) ([]byte, error) {
	b, err := r.Backend(p)
	if err != nil {
		return nil, err
	}
	return b.Download(ctx, pointer)
}

// Delete removes the object from provider p.
func (r *Router) Delete(ctx context.Context, p Provider, pointer string) error {
	b, err := r.Backend(p)
	if err != nil {
		return err
	}
	return b.Delete(ctx, pointer)
}
