package spritenav

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/hupe1980/spritenav/analyzer"
	"github.com/hupe1980/spritenav/codec"
	"github.com/hupe1980/spritenav/config"
	"github.com/hupe1980/spritenav/internal/cache"
	"github.com/hupe1980/spritenav/model"
	"github.com/hupe1980/spritenav/persist"
	"github.com/hupe1980/spritenav/predictor"
	"github.com/hupe1980/spritenav/regionmap"
	"github.com/hupe1980/spritenav/resource"
	"github.com/hupe1980/spritenav/rom"
	"github.com/hupe1980/spritenav/similarity"
	"github.com/hupe1980/spritenav/strategy"
)

// cacheSchemaVersion invalidates persisted cache entries whenever the hint
// computation or its serialized form changes.
const cacheSchemaVersion uint32 = 1

// compactEvery triggers a background disk cache compaction after this many
// inserts.
const compactEvery = 64

// State describes how much the engine has learned about the ROM.
type State uint8

const (
	// StateCold means no confirmed locations exist yet.
	StateCold State = iota
	// StateLearning means some locations exist but not enough for
	// pattern or similarity inference.
	StateLearning
	// StateIntelligent means learned strategies are active.
	StateIntelligent
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateLearning:
		return "learning"
	case StateIntelligent:
		return "intelligent"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Engine coordinates the region map, analyzers, predictor, strategies and
// cache for one ROM image. Safe for concurrent use.
type Engine struct {
	romID   string
	romSize uint64
	cfg     config.Config

	logger  *Logger
	metrics MetricsCollector
	codec   codec.Codec

	regions *regionmap.Map
	sim     *similarity.Index
	pred    *predictor.Predictor

	// modelMu guards the lazily recomputed pattern model.
	modelMu sync.Mutex
	model   *analyzer.Model

	registry *strategy.Registry
	// pluginMu guards the set of names registered as plugins.
	pluginMu sync.Mutex
	plugins  map[string]bool

	cache      *cache.TwoTier
	store      persist.Store
	controller *resource.Controller
	romBytes   rom.ByteProvider

	inserts atomic.Uint64
	closed  atomic.Bool
}

// New creates an engine for a ROM of the given size. romID must be stable
// across sessions (content hash or canonical path); it keys persisted
// cache entries and snapshots.
func New(romID string, romSize uint64, optFns ...Option) (*Engine, error) {
	if romID == "" {
		return nil, errors.New("rom id must not be empty")
	}
	if romSize == 0 {
		return nil, errors.New("rom size must be positive")
	}

	o := applyOptions(optFns)
	cfg := o.cfg

	controller := o.controller
	if controller == nil {
		controller = resource.NewController(resource.Config{
			MaxBackgroundWorkers: cfg.Resources.MaxBackgroundWorkers,
			IOLimitBytesPerSec:   cfg.Resources.IOLimitBytesPerSec,
		})
	}

	memory := cache.NewLRU(cfg.Cache.MemoryMaxEntries, cfg.Cache.MemoryMaxBytes)
	var disk *cache.Disk
	cacheDir := o.cacheDir
	if cacheDir == "" {
		cacheDir = cfg.Cache.DiskDir
	}
	if cacheDir != "" {
		var err error
		disk, err = cache.NewDisk(filepath.Clean(cacheDir), cache.DiskOptions{
			MaxBytes:   cfg.Cache.DiskMaxBytes,
			TTL:        cfg.Cache.DiskTTL,
			Controller: controller,
		})
		if err != nil {
			return nil, fmt.Errorf("open disk cache: %w", err)
		}
	}

	e := &Engine{
		romID:   romID,
		romSize: romSize,
		cfg:     cfg,
		logger:  o.logger.WithROM(romID),
		metrics: o.metricsCollector,
		codec:   o.codec,
		regions: regionmap.New(romSize, regionmap.WithBucketSize(cfg.BucketSize)),
		sim: similarity.New(func(so *similarity.Options) {
			so.Weights = similarity.Weights{
				Size:       cfg.Similarity.SizeWeight,
				Structural: cfg.Similarity.StructuralWeight,
				Ratio:      cfg.Similarity.RatioWeight,
				Complexity: cfg.Similarity.ComplexityWeight,
			}
			so.Threshold = cfg.Similarity.Threshold
			so.MinResults = cfg.Similarity.MinResults
			so.RelaxFactor = cfg.Similarity.RelaxFactor
		}),
		pred: predictor.New(
			predictor.WithWeights(predictor.Weights{
				Pattern:    cfg.Predictor.PatternWeight,
				Density:    cfg.Predictor.DensityWeight,
				Similarity: cfg.Predictor.SimilarityWeight,
			}),
			predictor.WithAlpha(cfg.Predictor.Alpha),
		),
		registry:   strategy.NewRegistry(),
		plugins:    make(map[string]bool),
		cache:      cache.NewTwoTier(memory, disk),
		store:      o.snapshotStore,
		controller: controller,
		romBytes:   o.romProvider,
	}

	e.registry.Register("linear", func() (strategy.Strategy, error) { return strategy.NewLinear(), nil })
	e.registry.Register("pattern", func() (strategy.Strategy, error) { return strategy.NewPatternBased(), nil })
	e.registry.Register("similarity", func() (strategy.Strategy, error) { return strategy.NewSimilarityBased(), nil })
	e.registry.Register("hybrid", func() (strategy.Strategy, error) { return strategy.NewHybrid(), nil })

	return e, nil
}

// State derives the engine state from the number of confirmed locations.
func (e *Engine) State() State {
	n := e.regions.Len()
	switch {
	case n == 0:
		return StateCold
	case n < e.cfg.IntelligenceFloor:
		return StateLearning
	default:
		return StateIntelligent
	}
}

// Regions exposes the region map for read queries (ranges, gaps, nearest).
func (e *Engine) Regions() *regionmap.Map { return e.regions }

// AddDiscoveredSprite records a confirmed sprite location. Invalid
// locations are rejected with a *model.InvalidLocationError. Inserting
// bumps the map version, which implicitly invalidates all cached hints.
func (e *Engine) AddDiscoveredSprite(ctx context.Context, loc model.SpriteLocation) error {
	if e.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	inserted, err := e.regions.Insert(loc)
	e.metrics.RecordDiscovery(time.Since(start), err)
	e.logger.LogDiscovery(ctx, loc, inserted, err)
	if err != nil {
		return translateError(err)
	}

	if inserted {
		if !loc.Fingerprint.IsZero() {
			e.sim.Add(loc)
		}
		if e.inserts.Add(1)%compactEvery == 0 {
			e.compactInBackground()
		}
	}
	return nil
}

// NavigationHints returns ranked candidate offsets for the query, using
// the state-appropriate strategy: linear below the intelligence floor,
// hybrid above it. Results are served from the cache when the identical
// query was answered for the identical map state before.
func (e *Engine) NavigationHints(ctx context.Context, nctx model.NavigationContext) ([]model.NavigationHint, error) {
	return e.NavigationHintsWith(ctx, e.activeStrategy(), nctx)
}

// NavigationHintsWith runs a named strategy. A failing strategy degrades
// the query to linear hints; the degraded result is never cached.
func (e *Engine) NavigationHintsWith(ctx context.Context, name string, nctx model.NavigationContext) ([]model.NavigationHint, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	nctx.ROMID = e.romID
	if nctx.Window == 0 {
		nctx.Window = strategy.DefaultWindow
	}

	start := time.Now()
	key := e.cacheKey(name, nctx)

	payload, cached, err := e.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		hints, err := e.computeHints(ctx, name, nctx)
		if err != nil {
			return nil, err
		}
		return e.codec.Marshal(hints)
	})

	var hints []model.NavigationHint
	switch {
	case err == nil:
		if uerr := e.codec.Unmarshal(payload, &hints); uerr != nil {
			err = fmt.Errorf("decode cached hints: %w", uerr)
		}
	default:
		var serr *StrategyError
		if errors.As(err, &serr) {
			// Degrade this query to linear; bypass the cache so the
			// fallback never masks the real strategy later.
			hints = strategy.GenerateLinear(ctx, e.buildQuery(nctx))
			err = nil
		}
	}

	e.metrics.RecordHints(name, len(hints), time.Since(start), cached, err)
	e.logger.LogHints(ctx, name, nctx.Cursor, len(hints), cached, err)
	if err != nil {
		return nil, translateError(err)
	}
	return hints, nil
}

// LearnFromOutcome feeds back whether a hint led to a confirmed sprite.
// The predictor shifts its signal weights accordingly.
func (e *Engine) LearnFromOutcome(ctx context.Context, hint model.NavigationHint, success bool) {
	if e.closed.Load() {
		return
	}
	e.pred.RecordOutcome(hint, success)
	e.metrics.RecordOutcome(success)
	e.logger.LogOutcome(ctx, hint, success)
}

// RegisterPlugin adds an external strategy under name. A factory or
// FindNext failure disables the plugin for the session without affecting
// built-ins or other plugins.
func (e *Engine) RegisterPlugin(name string, f strategy.Factory) {
	e.pluginMu.Lock()
	e.plugins[name] = true
	e.pluginMu.Unlock()
	e.registry.Register(name, f)
}

// UnregisterPlugin removes a plugin strategy.
func (e *Engine) UnregisterPlugin(name string) {
	e.pluginMu.Lock()
	delete(e.plugins, name)
	e.pluginMu.Unlock()
	e.registry.Unregister(name)
}

// PluginDisabled reports whether a plugin has been isolated this session.
func (e *Engine) PluginDisabled(name string) bool {
	return e.registry.Disabled(name)
}

// SaveSnapshot persists the learned map under name.
func (e *Engine) SaveSnapshot(ctx context.Context, name string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.store == nil {
		return errors.New("no snapshot store configured")
	}

	start := time.Now()
	data := &snapshotData{
		ROMID:      e.romID,
		ROMSize:    e.romSize,
		BucketSize: e.regions.BucketSize(),
		Locations:  e.regions.Locations(),
	}

	raw, err := encodeSnapshot(e.codec, data)
	if err == nil {
		err = e.store.Put(ctx, name, raw)
	}
	e.metrics.RecordSnapshot("save", time.Since(start), err)
	e.logger.LogSnapshot(ctx, "save", name, len(raw), err)
	return translateError(err)
}

// LoadSnapshot replaces the learned state with a persisted snapshot.
// A snapshot written by an incompatible format version is not an error:
// the engine logs it, keeps an empty map and starts learning fresh.
// Corrupt snapshots and ROM mismatches leave current state untouched.
func (e *Engine) LoadSnapshot(ctx context.Context, name string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.store == nil {
		return errors.New("no snapshot store configured")
	}

	start := time.Now()
	err := e.loadSnapshot(ctx, name)
	e.metrics.RecordSnapshot("load", time.Since(start), err)
	e.logger.LogSnapshot(ctx, "load", name, 0, err)
	return translateError(err)
}

func (e *Engine) loadSnapshot(ctx context.Context, name string) error {
	raw, err := e.store.Get(ctx, name)
	if err != nil {
		return err
	}

	data, err := decodeSnapshot(raw)
	if err != nil {
		var sve *SnapshotVersionError
		if errors.As(err, &sve) {
			e.logger.WarnContext(ctx, "snapshot version mismatch, starting fresh",
				"name", name,
				"found", sve.Found,
				"supported", sve.Supported,
			)
			e.resetState(nil)
			return nil
		}
		return err
	}

	if data.ROMSize != e.romSize {
		return fmt.Errorf("snapshot is for a different ROM: size 0x%X, want 0x%X", data.ROMSize, e.romSize)
	}

	e.resetState(data.Locations)
	return nil
}

// resetState replaces the map and similarity index contents. Cached
// entries keyed by older map versions become unreachable; the explicit
// invalidation keeps the memory tier from holding them until eviction.
func (e *Engine) resetState(locs []model.SpriteLocation) {
	e.regions.Clear()
	for _, loc := range locs {
		if _, err := e.regions.Insert(loc); err != nil {
			e.logger.Warn("snapshot location rejected", "offset", loc.Offset, "error", err)
		}
	}
	e.sim.Rebuild(e.regions.Locations())
	e.cache.Invalidate(func(k cache.Key) bool { return k.ROMID == e.romID })
}

// Stats is a point-in-time view of engine state.
type Stats struct {
	State      State
	Locations  int
	MapVersion uint64

	MemoryHits   int64
	MemoryMisses int64
	DiskHits     int64
	DiskMisses   int64

	PredictorWeights predictor.Weights
	Strategies       []string
}

// Stats returns current counters and learned-state summary.
func (e *Engine) Stats() Stats {
	memHits, memMisses, diskHits, diskMisses := e.cache.Stats()
	return Stats{
		State:            e.State(),
		Locations:        e.regions.Len(),
		MapVersion:       e.regions.Version(),
		MemoryHits:       memHits,
		MemoryMisses:     memMisses,
		DiskHits:         diskHits,
		DiskMisses:       diskMisses,
		PredictorWeights: e.pred.Weights(),
		Strategies:       e.registry.Names(),
	}
}

// Close releases the cache tiers. Further operations return ErrClosed.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return e.cache.Close()
}

func (e *Engine) activeStrategy() string {
	if e.regions.Len() < e.cfg.IntelligenceFloor {
		return "linear"
	}
	return "hybrid"
}

// computeHints runs the primary strategy plus every registered plugin.
// Primary failures surface as *StrategyError; plugin failures disable the
// plugin for the session and never fail the query.
func (e *Engine) computeHints(ctx context.Context, name string, nctx model.NavigationContext) ([]model.NavigationHint, error) {
	q := e.buildQuery(nctx)

	primary, err := e.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	hints, err := e.runStrategy(ctx, primary, q)
	if err != nil {
		e.metrics.RecordStrategyFailure(name)
		if e.isPlugin(name) {
			e.registry.Disable(name)
		}
		e.logger.LogStrategyFailure(ctx, name, e.isPlugin(name), err)
		return nil, err
	}

	// Below the intelligence floor only linear hints are served; plugins
	// are not consulted until enough locations are confirmed.
	if e.regions.Len() < e.cfg.IntelligenceFloor {
		return capHints(hints, q.MaxHints()), nil
	}

	for _, pname := range e.pluginNames() {
		if pname == name || e.registry.Disabled(pname) {
			continue
		}
		plugin, rerr := e.registry.Resolve(pname)
		if rerr != nil {
			e.metrics.RecordStrategyFailure(pname)
			e.logger.LogStrategyFailure(ctx, pname, true, rerr)
			continue
		}
		ph, perr := e.runStrategy(ctx, plugin, q)
		if perr != nil {
			e.metrics.RecordStrategyFailure(pname)
			e.registry.Disable(pname)
			e.logger.LogStrategyFailure(ctx, pname, true, perr)
			continue
		}
		hints = append(hints, ph...)
	}

	return capHints(hints, q.MaxHints()), nil
}

func capHints(hints []model.NavigationHint, max int) []model.NavigationHint {
	hints = strategy.Dedupe(hints, 0x10)
	if len(hints) > max {
		hints = hints[:max]
	}
	return hints
}

// runStrategy isolates a single strategy call, converting panics into
// *StrategyError so one misbehaving strategy cannot take the engine down.
func (e *Engine) runStrategy(ctx context.Context, s strategy.Strategy, q strategy.Query) (hints []model.NavigationHint, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StrategyError{Name: s.Name(), Kind: s.Kind(), cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	hints, err = s.FindNext(ctx, q)
	if err != nil {
		err = &StrategyError{Name: s.Name(), Kind: s.Kind(), cause: err}
	}
	return hints, err
}

func (e *Engine) buildQuery(nctx model.NavigationContext) strategy.Query {
	return strategy.Query{
		Context:    nctx,
		ROMSize:    e.romSize,
		Map:        e.regions,
		Model:      e.patternModel(),
		Sim:        e.sim,
		Pred:       e.pred,
		ROM:        e.romBytes,
		Floor:      e.cfg.IntelligenceFloor,
		LinearStep: e.cfg.LinearStep,
	}
}

// patternModel returns the derived model, recomputing it when the map
// changed since the last derivation. Recomputation is whole, never
// incremental.
func (e *Engine) patternModel() *analyzer.Model {
	version := e.regions.Version()

	e.modelMu.Lock()
	defer e.modelMu.Unlock()

	if e.model == nil || e.model.MapVersion != version {
		m := analyzer.Analyze(e.regions.Locations(), e.regions.BucketSize())
		m.MapVersion = version
		e.model = m
	}
	return e.model
}

func (e *Engine) pluginNames() []string {
	e.pluginMu.Lock()
	defer e.pluginMu.Unlock()
	out := make([]string, 0, len(e.plugins))
	for name := range e.plugins {
		out = append(out, name)
	}
	return out
}

func (e *Engine) isPlugin(name string) bool {
	e.pluginMu.Lock()
	defer e.pluginMu.Unlock()
	return e.plugins[name]
}

func (e *Engine) compactInBackground() {
	if !e.controller.TryAcquireBackground() {
		return
	}
	go func() {
		defer e.controller.ReleaseBackground()
		e.cache.Compact()
	}()
}

// cacheKey derives the deterministic cache key for a query. The map
// version is part of the key, so any insert implicitly invalidates every
// previously cached result.
func (e *Engine) cacheKey(strategyName string, nctx model.NavigationContext) cache.Key {
	buf := make([]byte, 0, 64)
	buf = binary.LittleEndian.AppendUint64(buf, nctx.Cursor)
	buf = binary.LittleEndian.AppendUint64(buf, nctx.Window)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(nctx.MaxHints))
	buf = append(buf, strategyName...)

	return cache.Key{
		ROMID:         e.romID,
		MapVersion:    e.regions.Version(),
		QueryHash:     xxh3.Hash(buf),
		EngineVersion: cacheSchemaVersion,
	}
}
