// Package config loads the editor tuning file. The file is TOML; every
// field is optional and falls back to the stock defaults, so a partial
// file only overrides what it names.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/corral/pkg/collision"
	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/frame"
)

// Config is the editor tuning surface.
type Config struct {
	Geometry  Geometry  `toml:"geometry"`
	Collision Collision `toml:"collision"`
	Documents Documents `toml:"documents"`
}

// Geometry tunes the frame pass.
type Geometry struct {
	RootPadding      Padding `toml:"root-padding"`
	SubPadding       Padding `toml:"sub-padding"`
	LoopPadding      float64 `toml:"loop-padding"`
	SelectionPadding float64 `toml:"selection-padding"`

	CompactWidth      float64 `toml:"compact-width"`
	CompactRowHeight  float64 `toml:"compact-row-height"`
	CompactHeaderSize float64 `toml:"compact-header-size"`
}

// Padding mirrors frame.Padding for the TOML surface.
type Padding struct {
	Left   float64 `toml:"left"`
	Top    float64 `toml:"top"`
	Right  float64 `toml:"right"`
	Bottom float64 `toml:"bottom"`
}

// Collision tunes drop-time frame separation.
type Collision struct {
	Margin          float64 `toml:"margin"`
	AnimationFrames int     `toml:"animation-frames"`
	MaxMoves        int     `toml:"max-moves"`
}

// Documents tunes persistence.
type Documents struct {
	// Dir is the document directory; empty uses the per-user default.
	Dir string `toml:"dir"`
	// MongoURI enables the Mongo-backed store when set.
	MongoURI string `toml:"mongo-uri"`
	// RedisAddr enables the Redis-backed shared caches (render
	// artifacts, definition catalog) when set.
	RedisAddr string `toml:"redis-addr"`
}

// Default returns the stock tuning, matching frame.DefaultOptions and
// collision.DefaultOptions.
func Default() Config {
	fo := frame.DefaultOptions()
	co := collision.DefaultOptions()
	return Config{
		Geometry: Geometry{
			RootPadding:       paddingFrom(fo.RootPadding),
			SubPadding:        paddingFrom(fo.SubPadding),
			LoopPadding:       fo.LoopPadding,
			SelectionPadding:  fo.SelectionPadding,
			CompactWidth:      fo.CompactWidth,
			CompactRowHeight:  fo.CompactRowHeight,
			CompactHeaderSize: fo.CompactHeaderSize,
		},
		Collision: Collision{
			Margin:          co.Margin,
			AnimationFrames: co.AnimationFrames,
			MaxMoves:        co.MaxMoves,
		},
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "corral", "config.toml")
}

// Validate rejects tunings the geometry and collision passes cannot work
// with.
func (c Config) Validate() error {
	for name, p := range map[string]Padding{
		"geometry.root-padding": c.Geometry.RootPadding,
		"geometry.sub-padding":  c.Geometry.SubPadding,
	} {
		if p.Left < 0 || p.Top < 0 || p.Right < 0 || p.Bottom < 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "%s: negative padding", name)
		}
	}
	if c.Geometry.LoopPadding < 0 || c.Geometry.SelectionPadding < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "geometry: negative padding")
	}
	if c.Geometry.CompactWidth <= 0 || c.Geometry.CompactRowHeight <= 0 || c.Geometry.CompactHeaderSize <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "geometry: compact box metrics must be positive")
	}
	if c.Collision.Margin < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "collision.margin: must not be negative")
	}
	if c.Collision.AnimationFrames < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "collision.animation-frames: must not be negative")
	}
	if c.Collision.MaxMoves < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "collision.max-moves: must be at least 1")
	}
	return nil
}

// FrameOptions converts the geometry tuning into frame pass options.
func (c Config) FrameOptions() frame.Options {
	g := c.Geometry
	return frame.Options{
		RootPadding:       g.RootPadding.toFrame(),
		SubPadding:        g.SubPadding.toFrame(),
		LoopPadding:       g.LoopPadding,
		SelectionPadding:  g.SelectionPadding,
		CompactWidth:      g.CompactWidth,
		CompactRowHeight:  g.CompactRowHeight,
		CompactHeaderSize: g.CompactHeaderSize,
	}
}

// CollisionOptions converts the collision tuning into resolver options.
func (c Config) CollisionOptions() collision.Options {
	return collision.Options{
		Margin:          c.Collision.Margin,
		AnimationFrames: c.Collision.AnimationFrames,
		MaxMoves:        c.Collision.MaxMoves,
	}
}

func paddingFrom(p frame.Padding) Padding {
	return Padding{Left: p.Left, Top: p.Top, Right: p.Right, Bottom: p.Bottom}
}

func (p Padding) toFrame() frame.Padding {
	return frame.Padding{Left: p.Left, Top: p.Top, Right: p.Right, Bottom: p.Bottom}
}
