package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/crystal-mush/mushkit/pkg/ansi"
	"github.com/crystal-mush/mushkit/pkg/events"
	"github.com/crystal-mush/mushkit/pkg/session"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// TelnetServer is the plain TCP line transport.
type TelnetServer struct {
	game *Game
	addr string

	mu       sync.Mutex
	listener net.Listener
	conns    map[*telnetConn]struct{}
	wg       sync.WaitGroup
}

// NewTelnetServer creates the "telnet" service listening on addr.
func NewTelnetServer(g *Game, addr string) *TelnetServer {
	return &TelnetServer{game: g, addr: addr, conns: make(map[*telnetConn]struct{})}
}

func (s *TelnetServer) Name() string { return "telnet" }

// Start begins accepting connections.
func (s *TelnetServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("telnet listener: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	log.Printf("Listening (telnet) on %s", ln.Addr())

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, ln)
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *TelnetServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop accepts connections on the given listener until it is closed.
func (s *TelnetServer) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Stop closes the listener and every open connection.
func (s *TelnetServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	for c := range s.conns {
		c.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConnection manages a single client connection lifecycle.
func (s *TelnetServer) handleConnection(ctx context.Context, conn net.Conn) {
	g := s.game
	tc := &telnetConn{
		game:    g,
		conn:    conn,
		ctx:     ctx,
		retries: g.Conf.MaxRetries,
		decoder: inputDecoder(g.Conf.InputCharset),
	}
	tc.sess = session.New(g.Sessions.NextID(), "telnet", tc)
	tc.sess.Connect(conn.RemoteAddr().String())
	g.Sessions.Add(tc.sess)
	if g.Metrics != nil {
		g.Metrics.Connected("telnet")
	}

	s.mu.Lock()
	s.conns[tc] = struct{}{}
	s.mu.Unlock()

	log.Printf("[%d] New connection from %s", tc.sess.ID, tc.sess.Addr)

	defer func() {
		g.Disconnect(tc.sess)
		conn.Close()
		s.mu.Lock()
		delete(s.conns, tc)
		s.mu.Unlock()
		log.Printf("[%d] Connection closed from %s", tc.sess.ID, tc.sess.Addr)
	}()

	welcome := g.Texts.Connect()
	if welcome == "" {
		welcome = WelcomeText
	}
	tc.write(welcome)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 8192), 8192)
	for scanner.Scan() {
		line := stripTelnet(scanner.Text())
		line = strings.TrimRight(tc.decode(line), "\r\n")
		tc.sess.LineReceived(line)
		if tc.sess.Closed() {
			return
		}
	}
}

// telnetConn is the session.Sink for one TCP client.
type telnetConn struct {
	game    *Game
	conn    net.Conn
	ctx     context.Context
	sess    *session.Session
	decoder *encoding.Decoder
	retries int
	wmu     sync.Mutex
}

func (tc *telnetConn) AcceptLine(line string) {
	if tc.sess.LoggedIn() {
		tc.game.ExecuteCmd(tc.ctx, tc.sess.Character, line)
		return
	}
	tc.handleLogin(line)
}

func (tc *telnetConn) Deliver(ev events.Event) {
	tc.write(ev.Text + "\r\n")
}

func (tc *telnetConn) write(text string) {
	text = ansi.Render(strings.ReplaceAll(text, "\n", "\r\n"))
	tc.wmu.Lock()
	defer tc.wmu.Unlock()
	if _, err := tc.conn.Write([]byte(text)); err != nil {
		tc.sess.Disconnect()
	}
}

func (tc *telnetConn) say(text string) {
	tc.write(text + "\r\n")
}

// decode converts input that is not valid UTF-8 from the configured
// legacy charset.
func (tc *telnetConn) decode(line string) string {
	if utf8.ValidString(line) || tc.decoder == nil {
		return line
	}
	out, err := tc.decoder.String(line)
	if err != nil {
		return strings.ToValidUTF8(line, "?")
	}
	return out
}

// handleLogin processes pre-login commands.
func (tc *telnetConn) handleLogin(input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	g := tc.game

	switch strings.ToUpper(input) {
	case "QUIT":
		if txt := g.Texts.Quit(); txt != "" {
			tc.write(txt)
		} else {
			tc.say("Goodbye!")
		}
		tc.sess.Disconnect()
		return
	case "WHO":
		tc.say(g.WhoText())
		return
	}

	command, user, password := ParseConnect(input)
	switch {
	case strings.HasPrefix(command, "co"):
		if user == "" {
			tc.say("Usage: connect <name> <password>")
			return
		}
		if _, err := g.Connect(tc.ctx, tc.sess, user, password); err != nil {
			tc.failedLogin(err)
		}
	case strings.HasPrefix(command, "cr"):
		if user == "" {
			tc.say("Usage: create <name> <password>")
			return
		}
		if _, err := g.CreateAccount(tc.ctx, tc.sess, user, password); err != nil {
			tc.say(err.Error())
		}
	default:
		tc.say(`Commands: connect <name> <password>, create <name> <password>, WHO, QUIT`)
	}
}

func (tc *telnetConn) failedLogin(err error) {
	if !errors.Is(err, ErrBadLogin) {
		log.Printf("[%d] login error: %v", tc.sess.ID, err)
	}
	tc.say(ErrBadLogin.Error())
	tc.retries--
	if tc.retries <= 0 {
		tc.say("Too many failed attempts. Disconnecting.")
		tc.sess.Disconnect()
	}
}

// inputDecoder returns a decoder for the named charset, falling back to
// ISO 8859-1.
func inputDecoder(name string) *encoding.Decoder {
	if name == "" {
		return charmap.ISO8859_1.NewDecoder()
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		log.Printf("telnet: unknown input charset %q, using ISO-8859-1", name)
		return charmap.ISO8859_1.NewDecoder()
	}
	return enc.NewDecoder()
}

// stripTelnet removes IAC sequences and control characters from a line.
func stripTelnet(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0xFF && i+2 < len(s) {
			// IAC command: skip 3 bytes (IAC + cmd + option)
			i += 3
			continue
		}
		if s[i] == 0xFF && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] < 32 && s[i] != '\t' {
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}
