package pipeline

import (
	"context"

	"github.com/matzehuels/corral/pkg/cache"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/render/dot"
)

// RenderWithCacheInfo renders the requested formats with caching and
// returns whether every artifact came from the cache. All formats derive
// from one DOT export, so the cache key is the DOT hash plus the render
// options.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, state *State, opts Options) (map[string][]byte, bool, error) {
	if err := ValidateFormats(opts.Formats); err != nil {
		return nil, false, err
	}

	dotText := dot.ToDOT(state.Snapshot(), state.Store, dot.Options{Detailed: opts.Detailed})
	dotHash := cache.Hash([]byte(dotText))

	artifacts := make(map[string][]byte, len(opts.Formats))
	allCached := true

	for _, format := range opts.Formats {
		if !opts.Refresh {
			key := r.Keyer.ArtifactKey(dotHash, cache.ArtifactKeyOpts{Format: format, Detailed: opts.Detailed})
			if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
				artifacts[format] = data
				continue
			}
		}
		allCached = false

		data, err := renderFormat(dotText, format)
		if err != nil {
			return nil, false, errors.Wrap(errors.ErrCodeInternal, err, "render %s", format)
		}
		artifacts[format] = data

		key := r.Keyer.ArtifactKey(dotHash, cache.ArtifactKeyOpts{Format: format, Detailed: opts.Detailed})
		_ = r.Cache.Set(ctx, key, data, cache.TTLArtifact)
	}

	return artifacts, allCached && len(opts.Formats) > 0, nil
}

func renderFormat(dotText, format string) ([]byte, error) {
	switch format {
	case FormatDOT:
		return []byte(dotText), nil
	case FormatSVG:
		return dot.RenderSVG(dotText)
	case FormatPNG:
		return dot.RenderPNG(dotText)
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "invalid format: %q", format)
}
