package players

import (
	"context"
	"time"
)

// Players may leave the game gracefully, or may crash out and later rejoin.
// A dropped TCP connection deactivates the player on the spot, but orphaned
// records can still accumulate, so a background sweep progressively
// deactivates anyone silent past the staleness window.
const (
	// A player is stale once it has been silent this long.
	reapStaleAfter = 2 * time.Minute
	// Per tick, at most max(known/reapChunkDivisor, reapMinChunk) players
	// are examined, bounding reaping cost regardless of population.
	reapChunkDivisor = 50
	reapMinChunk     = 50
)

// RunReaper drives ReapStale on a fixed interval until ctx is cancelled.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := r.clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapStale()
		}
	}
}

// ReapStale examines the next chunk of the current id snapshot and
// deactivates every player that is both stale and still placed in a world.
// When the cursor exhausts the snapshot it is rebuilt fresh on the next
// tick, so a full pass completes over multiple ticks.
func (r *Registry) ReapStale() {
	cutoff := r.clk.Now().Add(-reapStaleAfter)

	r.mu.Lock()
	if len(r.reapKeys) == 0 {
		r.reapKeys = make([]int32, 0, len(r.byID))
		for id := range r.byID {
			r.reapKeys = append(r.reapKeys, id)
		}
		r.reapIndex = 0
	}

	budget := len(r.reapKeys) / reapChunkDivisor
	if budget < reapMinChunk {
		budget = reapMinChunk
	}

	var stale []*Player
	for r.reapIndex < len(r.reapKeys) && budget > 0 {
		if p, ok := r.byID[r.reapKeys[r.reapIndex]]; ok {
			if p.CurrentWorld() != 0 && p.LastContact().Before(cutoff) {
				stale = append(stale, p)
			}
		}
		budget--
		r.reapIndex++
	}

	if r.reapIndex >= len(r.reapKeys) {
		r.reapKeys = nil
		r.reapIndex = 0
	}
	r.mu.Unlock()

	// Deactivation takes the universe and roster locks, so it happens
	// outside the registry lock.
	for _, p := range stale {
		r.log.Infof("reaping stale player %d", p.ID())
		r.deactivate(p)
	}
}
