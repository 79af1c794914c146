// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about normalizer runs, geometry passes, collision
// resolution, and definition-catalog operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetNormalizerHooks(&myNormalizerHooks{})
//	    observability.SetCatalogHooks(&myCatalogHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Normalizer().OnRunStart(ctx)
//	// ... run the pass ...
//	observability.Normalizer().OnRunComplete(ctx, mutations, violations, duration)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Normalizer Hooks
// =============================================================================

// NormalizerHooks receives events from boundary-normalizer runs.
type NormalizerHooks interface {
	// OnRunStart records the beginning of a normalizer run.
	OnRunStart(ctx context.Context)

	// OnRunComplete records a finished run with its mutation and
	// violation counts.
	OnRunComplete(ctx context.Context, mutations, violations int, duration time.Duration)
}

// =============================================================================
// Geometry Hooks
// =============================================================================

// GeometryHooks receives events from frame-geometry recomputes.
type GeometryHooks interface {
	OnFramesStart(ctx context.Context, groupCount int)
	OnFramesComplete(ctx context.Context, frameCount int, duration time.Duration)
}

// =============================================================================
// Collision Hooks
// =============================================================================

// CollisionHooks receives events from drop-time collision resolution.
type CollisionHooks interface {
	// OnResolve records one drop resolution: how many frames moved and
	// whether the cascade hit its move cap.
	OnResolve(ctx context.Context, moved int, capped bool, duration time.Duration)
}

// =============================================================================
// Catalog Hooks
// =============================================================================

// CatalogHooks receives events from definition-catalog stores.
type CatalogHooks interface {
	OnPut(ctx context.Context, definitionID string)
	OnGet(ctx context.Context, definitionID string, found bool)
	OnDelete(ctx context.Context, definitionID string)
	OnList(ctx context.Context, count int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopNormalizerHooks is a no-op implementation of NormalizerHooks.
type NoopNormalizerHooks struct{}

func (NoopNormalizerHooks) OnRunStart(context.Context)                             {}
func (NoopNormalizerHooks) OnRunComplete(context.Context, int, int, time.Duration) {}

// NoopGeometryHooks is a no-op implementation of GeometryHooks.
type NoopGeometryHooks struct{}

func (NoopGeometryHooks) OnFramesStart(context.Context, int)                   {}
func (NoopGeometryHooks) OnFramesComplete(context.Context, int, time.Duration) {}

// NoopCollisionHooks is a no-op implementation of CollisionHooks.
type NoopCollisionHooks struct{}

func (NoopCollisionHooks) OnResolve(context.Context, int, bool, time.Duration) {}

// NoopCatalogHooks is a no-op implementation of CatalogHooks.
type NoopCatalogHooks struct{}

func (NoopCatalogHooks) OnPut(context.Context, string)       {}
func (NoopCatalogHooks) OnGet(context.Context, string, bool) {}
func (NoopCatalogHooks) OnDelete(context.Context, string)    {}
func (NoopCatalogHooks) OnList(context.Context, int)         {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	normalizerHooks NormalizerHooks = NoopNormalizerHooks{}
	geometryHooks   GeometryHooks   = NoopGeometryHooks{}
	collisionHooks  CollisionHooks  = NoopCollisionHooks{}
	catalogHooks    CatalogHooks    = NoopCatalogHooks{}
	hooksMu         sync.RWMutex
)

// SetNormalizerHooks registers custom normalizer hooks.
// This should be called once at application startup before any runs.
func SetNormalizerHooks(h NormalizerHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		normalizerHooks = h
	}
}

// SetGeometryHooks registers custom geometry hooks.
// This should be called once at application startup before any passes.
func SetGeometryHooks(h GeometryHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		geometryHooks = h
	}
}

// SetCollisionHooks registers custom collision hooks.
// This should be called once at application startup before any drops.
func SetCollisionHooks(h CollisionHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		collisionHooks = h
	}
}

// SetCatalogHooks registers custom catalog hooks.
// This should be called once at application startup before any store use.
func SetCatalogHooks(h CatalogHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		catalogHooks = h
	}
}

// Normalizer returns the registered normalizer hooks.
func Normalizer() NormalizerHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return normalizerHooks
}

// Geometry returns the registered geometry hooks.
func Geometry() GeometryHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return geometryHooks
}

// Collision returns the registered collision hooks.
func Collision() CollisionHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return collisionHooks
}

// Catalog returns the registered catalog hooks.
func Catalog() CatalogHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return catalogHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	normalizerHooks = NoopNormalizerHooks{}
	geometryHooks = NoopGeometryHooks{}
	collisionHooks = NoopCollisionHooks{}
	catalogHooks = NoopCatalogHooks{}
}
