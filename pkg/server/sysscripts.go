package server

import (
	"context"
	"log"
	"time"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/scripts"
)

// System script keys.
const (
	ScriptAutosave    = "sys_autosave"
	ScriptIdleTimeout = "sys_idle_timeout"
	ScriptBusCleanup  = "sys_bus_cleanup"
)

func (g *Game) registerSystemScripts() {
	// Scripts fire under the world lock.
	g.Scripts.Register(ScriptAutosave, func(ctx context.Context, s *scripts.Script) error {
		if err := g.saveAll(); err != nil {
			return err
		}
		return g.Accounts.Checkpoint(ctx)
	})
	g.Scripts.Register(ScriptIdleTimeout, func(ctx context.Context, s *scripts.Script) error {
		limit := g.idleTimeout()
		if limit <= 0 {
			return nil
		}
		for _, sess := range g.Sessions.All() {
			if sess.IdleTime() > limit {
				log.Printf("[%d] idle timeout for %s", sess.ID, sess.Addr)
				sess.Msg("You have been idle too long. Goodbye!")
				g.disconnect(sess)
			}
		}
		return nil
	})
	g.Scripts.Register(ScriptBusCleanup, func(ctx context.Context, s *scripts.Script) error {
		g.Bus.Cleanup()
		return nil
	})

	for _, s := range []*scripts.Script{
		{Record: scripts.Record{Key: ScriptIdleTimeout, Desc: "disconnects idle sessions", Obj: gamedb.Nothing, Interval: time.Minute}},
		{Record: scripts.Record{Key: ScriptBusCleanup, Desc: "drops closed event subscribers", Obj: gamedb.Nothing, Interval: 5 * time.Minute}},
	} {
		if _, err := g.Scripts.Add(s); err != nil {
			log.Printf("scripts: %s: %v", s.Key, err)
		}
	}
	g.scheduleAutosave()
}

// scheduleAutosave replaces the autosave script with one running every
// AutosaveMinutes. Zero turns autosave off.
func (g *Game) scheduleAutosave() {
	for _, s := range g.Scripts.Find(ScriptAutosave, gamedb.Nothing) {
		g.Scripts.Stop(s.ID)
	}
	interval := time.Duration(g.Conf.AutosaveMinutes) * time.Minute
	if interval <= 0 {
		return
	}
	s := &scripts.Script{Record: scripts.Record{Key: ScriptAutosave, Desc: "saves the database", Obj: gamedb.Nothing, Interval: interval}}
	if _, err := g.Scripts.Add(s); err != nil {
		log.Printf("scripts: %s: %v", s.Key, err)
	}
}
