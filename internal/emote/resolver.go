// Package emote resolves :name: tokens to emote references and memoizes the
// successful lookups for the lifetime of the process.
package emote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when an emote cannot be resolved.
var ErrNotFound = errors.New("emote not found")

// DefaultProbeTimeout bounds a shared probe once it no longer follows any
// single caller's context.
const DefaultProbeTimeout = 10 * time.Second

// Ref points at a resolved emote. It is never mutated after creation.
type Ref struct {
	Name     string
	Location string
}

// Fetcher probes the emote store. Implementations return the emote location on success.
type Fetcher interface {
	ProbeEmote(ctx context.Context, name string) (string, error)
}

// Resolver owns the emote cache. Only successful lookups are cached so that an
// emote uploaded later can still be resolved.
type Resolver struct {
	fetcher Fetcher
	log     *zerolog.Logger
	timeout time.Duration

	mu    sync.RWMutex
	cache map[string]Ref
	group singleflight.Group
}

// NewResolver builds a resolver backed by the given fetcher.
func NewResolver(fetcher Fetcher, logger *zerolog.Logger) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Resolver{
		fetcher: fetcher,
		log:     logger,
		timeout: DefaultProbeTimeout,
		cache:   make(map[string]Ref),
	}
}

// WithProbeTimeout overrides DefaultProbeTimeout. Non-positive values are ignored.
func (r *Resolver) WithProbeTimeout(d time.Duration) *Resolver {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Resolve returns the emote for name. Concurrent misses for the same name share
// one probe. The probe runs detached from ctx so that one caller giving up
// does not fail the others; ctx only limits how long this caller waits.
func (r *Resolver) Resolve(ctx context.Context, name string) (Ref, error) {
	if ref, ok := r.Cached(name); ok {
		return ref, nil
	}

	probeCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(name, func() (any, error) {
		// a caller that raced us may already have filled the cache
		if ref, ok := r.Cached(name); ok {
			return ref, nil
		}
		pctx, cancel := context.WithTimeout(probeCtx, r.timeout)
		defer cancel()
		location, err := r.fetcher.ProbeEmote(pctx, name)
		if err != nil {
			return nil, err
		}
		ref := Ref{Name: name, Location: location}
		r.mu.Lock()
		r.cache[name] = ref
		r.mu.Unlock()
		return ref, nil
	})

	select {
	case <-ctx.Done():
		return Ref{}, fmt.Errorf("resolve %s: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			r.log.Debug().Err(res.Err).Str("emote", name).Msg("emote resolution failed")
			if errors.Is(res.Err, ErrNotFound) {
				return Ref{}, res.Err
			}
			return Ref{}, fmt.Errorf("%w: %s: %v", ErrNotFound, name, res.Err)
		}
		return res.Val.(Ref), nil
	}
}

// Cached reports the cached emote for name without any external call.
func (r *Resolver) Cached(name string) (Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.cache[name]
	return ref, ok
}

// Len returns the number of cached emotes.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
