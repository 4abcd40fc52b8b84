// Package buildlog implements the navmesh build pipeline's side channel:
// a stack of timed sections plus append-only info/warn/error diagnostic
// streams. Every later pipeline stage (voxel, region, contour, polymesh,
// detailmesh) accepts a *Context and reports through it instead of
// returning or panicking on recoverable problems.
package buildlog

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Level classifies a diagnostic message.
type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Stage names a pipeline timer. Stages nest: pushing "region.watershed"
// while "region" is already running accumulates time into both.
type Stage string

const (
	StageRasterize      Stage = "rasterize"
	StageFilter         Stage = "filter"
	StageCompact        Stage = "compact"
	StageErode          Stage = "erode"
	StageDistanceField  Stage = "distance_field"
	StageMedianFilter   Stage = "median_filter"
	StageRegions        Stage = "regions"
	StageWatershed      Stage = "regions.watershed"
	StageMonotone       Stage = "regions.monotone"
	StageLayers         Stage = "regions.layers"
	StageRegionFilter   Stage = "regions.filter"
	StageContours       Stage = "contours"
	StagePolyMesh       Stage = "polymesh"
	StageDetailMesh     Stage = "detailmesh"
	StageTileAssembly   Stage = "tile_assembly"
	StageBVTree         Stage = "bvtree"
	StageLink           Stage = "link"
)

// Message is a single structured diagnostic record, value-serializable
// per the external interfaces contract.
type Message struct {
	Level   Level  `json:"level" yaml:"level"`
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Stage   Stage  `json:"stage,omitempty" yaml:"stage,omitempty"`
	TileX   *int32 `json:"tileX,omitempty" yaml:"tileX,omitempty"`
	TileY   *int32 `json:"tileY,omitempty" yaml:"tileY,omitempty"`
}

// Timing is one accumulated-duration sample, emitted at the end of a build.
type Timing struct {
	Name          string `json:"name" yaml:"name"`
	DurationMicros int64 `json:"durationMicros" yaml:"durationMicros"`
}

// Context is the Build Context: it collects timing and diagnostics for a
// single build call. It is not safe for concurrent use by more than one
// writer; run one Context per goroutine building a tile (see §5 of the
// design: each build owns its Context exclusively).
type Context struct {
	log     *zap.Logger
	enabled bool

	messages []Message
	starts   map[Stage]time.Time
	accum    map[Stage]time.Duration
}

// New creates a Context. When sink is nil, diagnostics are only buffered
// in-process (Messages/Timings); when non-nil, every message is
// also mirrored to the structured logger (e.g. a zap.Logger writing
// through lumberjack for long-running offline builds).
func New(sink *zap.Logger) *Context {
	return &Context{
		log:     sink,
		enabled: true,
		starts:  make(map[Stage]time.Time),
		accum:   make(map[Stage]time.Duration),
	}
}

// Disabled returns a Context that drops all timing and logging, for hot
// paths (e.g. repeated tile rebuilds in a hot-reload loop) that don't
// want the bookkeeping overhead.
func Disabled() *Context {
	return &Context{enabled: false, starts: map[Stage]time.Time{}, accum: map[Stage]time.Duration{}}
}

func (c *Context) Infof(code, format string, args ...interface{}) {
	c.emit(Info, code, format, args...)
}

func (c *Context) Warnf(code, format string, args ...interface{}) {
	c.emit(Warn, code, format, args...)
}

func (c *Context) Errorf(code, format string, args ...interface{}) {
	c.emit(Error, code, format, args...)
}

// WarnTile attaches tile coordinates to the message, used by tile
// builds so a caller scanning diagnostics across many tiles can tell
// which tile a warning came from.
func (c *Context) WarnTile(tx, ty int32, code, format string, args ...interface{}) {
	m := Message{Level: Warn, Code: code, Message: fmt.Sprintf(format, args...), TileX: &tx, TileY: &ty}
	c.record(m)
}

func (c *Context) emit(lvl Level, code, format string, args ...interface{}) {
	c.record(Message{Level: lvl, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (c *Context) record(m Message) {
	if !c.enabled {
		return
	}
	c.messages = append(c.messages, m)
	if c.log == nil {
		return
	}
	switch m.Level {
	case Warn:
		c.log.Warn(m.Message, zap.String("code", m.Code), zap.String("stage", string(m.Stage)))
	case Error:
		c.log.Error(m.Message, zap.String("code", m.Code), zap.String("stage", string(m.Stage)))
	default:
		c.log.Info(m.Message, zap.String("code", m.Code), zap.String("stage", string(m.Stage)))
	}
}

// Start pushes a timed section. Stop must be called with the same Stage
// to pop it; call via `defer ctx.Stop(stage, ctx.Start(stage))`.
func (c *Context) Start(stage Stage) time.Time {
	if !c.enabled {
		return time.Time{}
	}
	return time.Now()
}

// Stop accumulates the elapsed time since t into stage's running total.
func (c *Context) Stop(stage Stage, t time.Time) {
	if !c.enabled || t.IsZero() {
		return
	}
	c.accum[stage] += time.Since(t)
}

// Messages returns every diagnostic recorded so far, in emission order.
func (c *Context) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Timings returns the accumulated duration per stage, for a build report.
func (c *Context) Timings() []Timing {
	out := make([]Timing, 0, len(c.accum))
	for stage, d := range c.accum {
		out = append(out, Timing{Name: string(stage), DurationMicros: d.Microseconds()})
	}
	return out
}

// HasErrors reports whether any Error-level diagnostic was recorded.
func (c *Context) HasErrors() bool {
	for _, m := range c.messages {
		if m.Level == Error {
			return true
		}
	}
	return false
}
