package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/mushkit/pkg/ansi"
	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/session"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// WebConfig holds configuration for the web portal.
type WebConfig struct {
	Port        int
	Host        string
	CORSOrigins []string
	RateLimit   int
	JWTSecret   string
	JWTExpiry   int
}

// WebConfigFrom extracts the web settings from a game config.
func WebConfigFrom(gc *GameConf) WebConfig {
	return WebConfig{
		Port:        gc.WebPort,
		Host:        gc.WebHost,
		CORSOrigins: gc.WebCORSOrigins,
		RateLimit:   gc.WebRateLimit,
		JWTSecret:   gc.JWTSecret,
		JWTExpiry:   gc.JWTExpiry,
	}
}

// WebServer is the portal: a websocket game transport plus a small JSON
// API, health and metrics endpoints.
type WebServer struct {
	game     *Game
	cfg      WebConfig
	mux      *http.ServeMux
	handler  http.Handler
	auth     *AuthService
	rl       *rateLimiter
	upgrader websocket.Upgrader

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	stopRL   chan struct{}
}

// NewWebServer creates the "web" service bound to the game. It installs
// the game's Metrics.
func NewWebServer(game *Game, cfg WebConfig) *WebServer {
	ws := &WebServer{
		game: game,
		cfg:  cfg,
		mux:  http.NewServeMux(),
		auth: NewAuthService(game, cfg.JWTSecret, cfg.JWTExpiry),
		rl:   newRateLimiter(cfg.RateLimit),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(cfg.CORSOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range cfg.CORSOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}
	if game.Metrics == nil {
		game.Metrics = NewMetrics(game)
	}
	ws.registerRoutes()
	return ws
}

func (ws *WebServer) Name() string { return "web" }

// Auth returns the auth service for external use.
func (ws *WebServer) Auth() *AuthService { return ws.auth }

// Handler returns the fully wrapped HTTP handler.
func (ws *WebServer) Handler() http.Handler { return ws.handler }

func (ws *WebServer) registerRoutes() {
	ws.mux.HandleFunc("GET /ws", ws.handleWebSocket)

	ws.mux.HandleFunc("POST /api/v1/auth/login", ws.handleAuthLogin)
	ws.mux.HandleFunc("POST /api/v1/auth/refresh", ws.handleAuthRefresh)
	ws.registerRESTRoutes()

	ws.mux.HandleFunc("GET /health", ws.handleHealth)
	ws.mux.Handle("GET /metrics", ws.game.Metrics.Handler())

	// CORS -> rate limit -> mux
	handler := http.Handler(ws.mux)
	handler = rateLimitMiddleware(ws.rl, handler)
	ws.handler = corsMiddleware(ws.cfg.CORSOrigins, handler)
}

// Start begins listening in the background.
func (ws *WebServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", ws.cfg.Host, ws.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web listener: %w", err)
	}
	srv := &http.Server{Handler: ws.handler, ReadHeaderTimeout: 10 * time.Second}
	stop := make(chan struct{})

	ws.mu.Lock()
	ws.httpSrv, ws.listener, ws.stopRL = srv, ln, stop
	ws.mu.Unlock()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ws.rl.cleanup()
			case <-stop:
				return
			}
		}
	}()
	go func() {
		log.Printf("Web server listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("web: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil when stopped.
func (ws *WebServer) Addr() net.Addr {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.listener == nil {
		return nil
	}
	return ws.listener.Addr()
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	ws.mu.Lock()
	srv, stop := ws.httpSrv, ws.stopRL
	ws.httpSrv, ws.listener, ws.stopRL = nil, nil, nil
	ws.mu.Unlock()
	if srv == nil {
		return nil
	}
	close(stop)
	return srv.Shutdown(ctx)
}

// --- WebSocket ---

// WSMessage is the JSON message format for websocket communication.
type WSMessage struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Command string         `json:"command,omitempty"`
}

// handleWebSocket upgrades the request and attaches a session to it. A
// valid token (query parameter or bearer header) logs the session in
// straight away.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *Claims
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r)
	}
	if token != "" {
		var err error
		if claims, err = ws.auth.ValidateToken(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	g := ws.game
	ctx := context.WithoutCancel(r.Context())
	wc := &wsConn{game: g, auth: ws.auth, conn: conn, ctx: ctx}
	wc.sess = session.New(g.Sessions.NextID(), "websocket", wc)
	wc.sess.Connect(clientIP(r))
	g.Sessions.Add(wc.sess)
	g.Metrics.Connected("websocket")

	if claims != nil {
		player, err := ws.auth.PlayerFor(ctx, claims)
		if err == nil {
			err = wc.login(player.Name, func() error { return g.LoginPlayer(ctx, wc.sess, player) })
		}
		if err != nil {
			wc.send(WSMessage{Type: "error", Text: "Token no longer matches an account."})
		}
	} else {
		wc.send(WSMessage{Type: "welcome", Text: `Connected. Send {"type":"login","command":"connect name password"} to authenticate.`})
	}

	go wc.readLoop()
}

// wsConn is the session.Sink for one websocket client.
type wsConn struct {
	game *Game
	auth *AuthService
	conn *websocket.Conn
	ctx  context.Context
	sess *session.Session
	mu   sync.Mutex
}

func (wc *wsConn) send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ws:%d] encode: %v", wc.sess.ID, err)
		return
	}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := wc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		wc.sess.Disconnect()
	}
}

func (wc *wsConn) AcceptLine(line string) {
	if wc.sess.LoggedIn() {
		wc.game.ExecuteCmd(wc.ctx, wc.sess.Character, line)
		return
	}
	wc.handleLogin(line)
}

// Deliver sends an event with colour markup stripped; clients that want
// colour can use the structured data.
func (wc *wsConn) Deliver(ev events.Event) {
	wc.send(WSMessage{Type: ev.Type.String(), Text: ansi.Strip(ev.Text), Data: ev.Data})
}

func (wc *wsConn) readLoop() {
	g := wc.game
	defer func() {
		g.Disconnect(wc.sess)
		wc.conn.Close()
		log.Printf("[ws:%d] WebSocket closed from %s", wc.sess.ID, wc.sess.Addr)
	}()

	for {
		_, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws:%d] read error: %v", wc.sess.ID, err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			wc.send(WSMessage{Type: "error", Text: "Invalid JSON message"})
			continue
		}
		switch msg.Type {
		case "command":
			wc.sess.LineReceived(msg.Command)
		case "login":
			wc.handleLogin(msg.Command)
		default:
			wc.send(WSMessage{Type: "error", Text: fmt.Sprintf("Unknown message type: %s", msg.Type)})
		}
		if wc.sess.Closed() {
			return
		}
	}
}

func (wc *wsConn) handleLogin(input string) {
	g := wc.game
	command, user, password := ParseConnect(input)
	switch {
	case strings.HasPrefix(command, "co") && user != "":
		wc.login(user, func() error {
			_, err := g.Connect(wc.ctx, wc.sess, user, password)
			return err
		})
	case strings.HasPrefix(command, "cr") && user != "":
		wc.login(user, func() error {
			_, err := g.CreateAccount(wc.ctx, wc.sess, user, password)
			return err
		})
	default:
		wc.send(WSMessage{Type: "error", Text: "Use: connect <name> <password> or create <name> <password>"})
	}
}

// login runs fn and reports the outcome, with a fresh token on success.
func (wc *wsConn) login(name string, fn func() error) error {
	if err := fn(); err != nil {
		if errors.Is(err, ErrBadLogin) {
			wc.send(WSMessage{Type: "error", Text: "Invalid credentials"})
		} else {
			wc.send(WSMessage{Type: "error", Text: err.Error()})
		}
		return err
	}
	p := wc.sess.Player
	data := map[string]any{"player_name": name, "char_ref": int(wc.sess.Character)}
	if p != nil {
		if token, err := wc.auth.issue(p); err == nil {
			data["token"] = token
		}
	}
	wc.send(WSMessage{Type: "login", Data: data})
	return nil
}

// --- Auth HTTP handlers ---

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := ws.auth.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	newToken, err := ws.auth.RefreshToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": newToken})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": time.Since(ws.game.StartTime).Seconds(),
		"game":           ws.game.GameStats(r.Context()),
		"memory":         ws.game.MemoryStats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
