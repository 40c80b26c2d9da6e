package server

import (
	"context"
	"runtime"
	"time"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
)

// SessionStats returns the number of open sessions per protocol.
func (g *Game) SessionStats() map[string]int {
	out := map[string]int{}
	for _, s := range g.Sessions.All() {
		out[s.ProtocolKey]++
	}
	return out
}

// MemoryStats returns Go runtime memory statistics.
func (g *Game) MemoryStats() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return map[string]any{
		"heap_alloc_bytes":  m.HeapAlloc,
		"heap_inuse_bytes":  m.HeapInuse,
		"goroutines":        runtime.NumGoroutine(),
		"gc_cycles":         m.NumGC,
		"gc_pause_total_ns": m.PauseTotalNs,
	}
}

// GameStats returns object, account and session counts.
func (g *Game) GameStats(ctx context.Context) map[string]any {
	counts := g.DB.CountByType()
	loginScreen := 0
	for _, s := range g.Sessions.All() {
		if !s.LoggedIn() && !s.Closed() {
			loginScreen++
		}
	}
	var running []string
	for _, name := range g.Services.Names() {
		if g.Services.Running(name) {
			running = append(running, name)
		}
	}
	players, err := g.Accounts.CountPlayers(ctx)
	if err != nil {
		players = -1
	}
	return map[string]any{
		"objects":      g.DB.Len(),
		"rooms":        counts[gamedb.TypeRoom],
		"characters":   counts[gamedb.TypeCharacter],
		"things":       counts[gamedb.TypeThing],
		"exits":        counts[gamedb.TypeExit],
		"players":      players,
		"sessions":     g.Sessions.Count(),
		"connected":    len(g.Sessions.LoggedIn()),
		"login_screen": loginScreen,
		"scripts":      g.Scripts.Count(),
		"services":     running,
		"uptime":       time.Since(g.StartTime).Round(time.Second).String(),
	}
}
