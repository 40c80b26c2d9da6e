package server

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/session"
	"github.com/goccy/go-json"
)

// registerRESTRoutes adds the JSON API under /api/v1.
func (ws *WebServer) registerRESTRoutes() {
	ws.mux.Handle("GET /api/v1/who",
		authMiddleware(ws.auth, false, http.HandlerFunc(ws.handleWho)))
	ws.mux.Handle("GET /api/v1/me",
		authMiddleware(ws.auth, true, http.HandlerFunc(ws.handleMe)))
	ws.mux.Handle("POST /api/v1/command",
		authMiddleware(ws.auth, true, http.HandlerFunc(ws.handleCommand)))
	ws.mux.Handle("GET /api/v1/objects/{dbref}",
		authMiddleware(ws.auth, true, http.HandlerFunc(ws.handleGetObject)))
}

type whoEntry struct {
	Name  string `json:"name"`
	Ref   int    `json:"ref"`
	OnFor string `json:"on_for"`
	Idle  string `json:"idle"`
}

func (ws *WebServer) handleWho(w http.ResponseWriter, r *http.Request) {
	var entries []whoEntry
	for _, s := range ws.game.Sessions.LoggedIn() {
		entries = append(entries, whoEntry{
			Name:  ws.game.ObjName(s.Character),
			Ref:   int(s.Character),
			OnFor: session.FormatConnTime(s.OnlineTime()),
			Idle:  session.FormatIdleTime(s.IdleTime()),
		})
	}
	slices.SortFunc(entries, func(a, b whoEntry) int { return strings.Compare(a.Name, b.Name) })
	writeJSON(w, http.StatusOK, map[string]any{"players": entries, "count": len(entries)})
}

func (ws *WebServer) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	player, err := ws.auth.PlayerFor(r.Context(), claims)
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	tags, err := ws.game.Accounts.PlayerTags(r.Context(), player.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load tags")
		return
	}
	tagNames := make([]string, 0, len(tags))
	for _, t := range tags {
		tagNames = append(tagNames, t.Key)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        player.ID,
		"name":      player.Name,
		"email":     player.Email,
		"superuser": player.Superuser,
		"char_ref":  int(player.Character),
		"connected": ws.game.Sessions.IsConnected(player.Character),
		"tags":      tagNames,
	})
}

// captureSink collects the events a command produces.
type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureSink) AcceptLine(string) {}

func (c *captureSink) Deliver(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// handleCommand runs one command as the token's character and returns its
// output without opening a game session.
func (ws *WebServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	if _, ok := ws.game.DB.Get(claims.CharRef); !ok {
		writeError(w, http.StatusNotFound, "character not found")
		return
	}

	sink := &captureSink{}
	capture := session.New(-1, "rest", sink)
	capture.Connect(clientIP(r))
	ws.game.Bus.Subscribe(claims.CharRef, capture)
	defer func() {
		ws.game.Bus.Unsubscribe(claims.CharRef, capture)
		capture.Disconnect()
	}()

	// Errors are already reported to the caller as a traceback event.
	_ = ws.game.ExecuteCmd(r.Context(), claims.CharRef, req.Command)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	out := make([]WSMessage, 0, len(sink.events))
	for _, ev := range sink.events {
		out = append(out, WSMessage{Type: ev.Type.String(), Text: ev.Text, Data: ev.Data})
	}
	writeJSON(w, http.StatusOK, map[string]any{"output": out})
}

func (ws *WebServer) handleGetObject(w http.ResponseWriter, r *http.Request) {
	ref, err := parseDBRef(r.PathValue("dbref"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dbref")
		return
	}
	var result map[string]any
	ws.game.WithWorld(func() {
		obj, ok := ws.game.DB.Get(ref)
		if !ok {
			return
		}
		result = map[string]any{
			"ref":         int(ref),
			"key":         obj.Key,
			"type":        obj.Type.String(),
			"location":    int(obj.Location),
			"home":        int(obj.Home),
			"description": obj.Description,
		}
		if obj.Type == gamedb.TypeExit {
			result["destination"] = int(obj.Destination)
		}
	})
	if result == nil {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseDBRef(s string) (gamedb.DBRef, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil {
		return gamedb.Nothing, err
	}
	return gamedb.DBRef(n), nil
}
