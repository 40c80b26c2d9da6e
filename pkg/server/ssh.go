package server

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/crystal-mush/mushkit/pkg/ansi"
	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/crystal-mush/mushkit/pkg/session"
	"github.com/gliderlabs/ssh"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

type sshPlayerKey struct{}

// SSHServer lets players connect with an ssh client, authenticating with
// their account name and password.
type SSHServer struct {
	game    *Game
	addr    string
	keyPath string

	mu  sync.Mutex
	srv *ssh.Server
	ln  net.Listener
}

// NewSSHServer creates the "ssh" service. The host key is generated at
// keyPath on first start.
func NewSSHServer(g *Game, addr, keyPath string) *SSHServer {
	return &SSHServer{game: g, addr: addr, keyPath: keyPath}
}

func (s *SSHServer) Name() string { return "ssh" }

func (s *SSHServer) Start(ctx context.Context) error {
	if err := ensureHostKey(s.keyPath); err != nil {
		return err
	}
	srv := &ssh.Server{
		Addr:            s.addr,
		Handler:         s.handle,
		PasswordHandler: s.authenticate,
	}
	if err := srv.SetOption(ssh.HostKeyFile(s.keyPath)); err != nil {
		return fmt.Errorf("ssh host key: %w", err)
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("ssh listener: %w", err)
	}
	s.mu.Lock()
	s.srv = srv
	s.ln = ln
	s.mu.Unlock()
	log.Printf("Listening (ssh) on %s", ln.Addr())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			log.Printf("ssh: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil when not running.
func (s *SSHServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *SSHServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *SSHServer) authenticate(ctx ssh.Context, password string) bool {
	player, err := s.game.Accounts.Authenticate(ctx, ctx.User(), password)
	if err != nil {
		log.Printf("ssh: failed login for %q from %s", ctx.User(), ctx.RemoteAddr())
		return false
	}
	ctx.SetValue(sshPlayerKey{}, player)
	return true
}

func (s *SSHServer) handle(sess ssh.Session) {
	g := s.game
	player, ok := sess.Context().Value(sshPlayerKey{}).(*gamedb.Player)
	if !ok {
		fmt.Fprintln(sess, "Not authenticated.")
		return
	}
	sc := &sshConn{term: term.NewTerminal(sess, "")}
	ms := session.New(g.Sessions.NextID(), "ssh", sc)
	sc.sess = ms
	ms.Connect(sess.RemoteAddr().String())
	g.Sessions.Add(ms)
	if g.Metrics != nil {
		g.Metrics.Connected("ssh")
	}
	defer func() {
		g.Disconnect(ms)
		log.Printf("[%d] SSH session closed from %s", ms.ID, ms.Addr)
	}()

	ctx := context.WithoutCancel(sess.Context())
	sc.game, sc.ctx = g, ctx
	if err := g.LoginPlayer(ctx, ms, player); err != nil {
		fmt.Fprintf(sc.term, "Login failed: %v\n", err)
		return
	}
	for {
		line, err := sc.term.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[%d] ssh read: %v", ms.ID, err)
			}
			return
		}
		ms.LineReceived(line)
		if ms.Closed() {
			return
		}
	}
}

// sshConn is the session.Sink for an ssh terminal.
type sshConn struct {
	game *Game
	ctx  context.Context
	sess *session.Session
	term *term.Terminal
	mu   sync.Mutex
}

func (c *sshConn) AcceptLine(line string) {
	c.game.ExecuteCmd(c.ctx, c.sess.Character, line)
}

func (c *sshConn) Deliver(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.term, ansi.Render(ev.Text))
}

// ensureHostKey writes a fresh ed25519 host key to path if none exists.
func ensureHostKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	block, err := gossh.MarshalPrivateKey(priv, "mushkit host key")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write host key: %w", err)
	}
	log.Printf("ssh: generated host key %s", path)
	return nil
}
