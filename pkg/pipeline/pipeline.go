// Package pipeline provides the core load → reconcile → normalize →
// cascade → geometry → render pipeline for corral.
//
// This package implements the complete document-processing pipeline that
// can be used by CLI and HTTP components. By centralizing this logic, we
// ensure consistent behavior across all entry points and avoid code
// duplication.
//
// # Architecture
//
// The pipeline consists of four stages:
//
//  1. Load: read the document and build the live graph, group store and
//     definition catalog
//  2. Normalize: reconcile memberships, run the boundary normalizer and
//     apply the gate cascade
//  3. Geometry: compute group frames
//  4. Render: generate output in various formats (DOT, SVG, PNG)
//
// Each stage can be run independently or as part of the complete pipeline.
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := pipeline.NewRunner(documents, cache, nil, logger)
//	opts := pipeline.Options{
//	    Document: "demo",
//	    Formats:  []string{"svg"},
//	}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svg := result.Artifacts["svg"]
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/corral/pkg/boundary"
	"github.com/matzehuels/corral/pkg/document"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/frame"
	"github.com/matzehuels/corral/pkg/gate"
)

// Format constants for output formats.
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
	FormatPNG = "png"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatDOT: true,
	FormatSVG: true,
	FormatPNG: true,
}

// Options contains all configuration for one pipeline run.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Document is the stored document name to process.
	Document string `json:"document"`

	// Formats selects render outputs. Empty skips the render stage.
	Formats []string `json:"formats,omitempty"`

	// Detailed adds port names and node types to rendered output.
	Detailed bool `json:"detailed,omitempty"`

	// Refresh bypasses the artifact cache.
	Refresh bool `json:"refresh,omitempty"`

	// Geometry overrides the frame pass tuning. The zero value uses
	// [frame.DefaultOptions].
	Geometry frame.Options `json:"-"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Document is the loaded document.
	Document *document.Document

	// State is the live editor state built from the document.
	State *State

	// Report summarizes the normalizer run.
	Report boundary.Report

	// Cascade summarizes the gate cascade application.
	Cascade gate.Result

	// Frames are the computed group frames.
	Frames []frame.Frame

	// Artifacts contains rendered outputs keyed by format.
	Artifacts map[string][]byte

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks which artifacts hit the cache.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	NodeCount     int
	GroupCount    int
	LoadTime      time.Duration
	NormalizeTime time.Duration
	GeometryTime  time.Duration
	RenderTime    time.Duration
}

// CacheInfo tracks cache hits for the render stage.
type CacheInfo struct {
	RenderHit bool // Whether all artifacts came from cache
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid format: %q (must be one of: dot, svg, png)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same
// effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Document == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "document is required")
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	if o.Geometry == (frame.Options{}) {
		o.Geometry = frame.DefaultOptions()
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}
