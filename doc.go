// Package spritenav ranks candidate byte offsets likely to contain
// compressed sprite graphics in a ROM image.
//
// The engine learns from confirmed discoveries: each inserted location
// feeds a region map, spacing/size/density analyzers and a content
// similarity index. Navigation strategies (linear, pattern, similarity,
// hybrid, plus external plugins) combine that state into ranked hints.
// Until enough locations are confirmed, every strategy degrades to plain
// linear scanning rather than inferring from insufficient data.
//
// Basic usage:
//
//	eng, err := spritenav.New("sha256:...", romSize)
//	if err != nil { ... }
//	defer eng.Close()
//
//	_ = eng.AddDiscoveredSprite(ctx, loc)
//
//	hints, err := eng.NavigationHints(ctx, model.NavigationContext{
//		Cursor:   0x1080,
//		MaxHints: 10,
//	})
//
// Hint queries are cached in a two-level cache (memory LRU plus optional
// persistent disk tier) keyed by ROM, query and map version: any new
// discovery changes the map version and implicitly invalidates everything
// cached before it. The derived pattern model is recomputed lazily and
// may lag the region map by at most one insert batch.
package spritenav
