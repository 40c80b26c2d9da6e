package server

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Service is a long-running part of the server that can be started and
// stopped while the game runs.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Services is the registry behind @service.
type Services struct {
	mu        sync.Mutex
	services  map[string]Service
	running   map[string]bool
	essential map[string]bool
}

// NewServices creates an empty registry.
func NewServices() *Services {
	return &Services{
		services:  make(map[string]Service),
		running:   make(map[string]bool),
		essential: make(map[string]bool),
	}
}

// Register adds a stopped service.
func (s *Services) Register(svc Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.Name()] = svc
}

// RegisterEssential adds a service that cannot be stopped in-game, such as
// the listener the operator is connected through.
func (s *Services) RegisterEssential(svc Service) {
	s.Register(svc)
	s.mu.Lock()
	s.essential[svc.Name()] = true
	s.mu.Unlock()
}

// Names returns the registered service names, sorted.
func (s *Services) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.services))
	for n := range s.services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a service is registered.
func (s *Services) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.services[name]
	return ok
}

// Running reports whether a service is started.
func (s *Services) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[name]
}

// Essential reports whether a service refuses in-game stops.
func (s *Services) Essential(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.essential[name]
}

// Start starts a stopped service.
func (s *Services) Start(ctx context.Context, name string) error {
	s.mu.Lock()
	svc, ok := s.services[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no service %q", name)
	}
	if s.running[name] {
		s.mu.Unlock()
		return fmt.Errorf("already running")
	}
	s.running[name] = true
	s.mu.Unlock()

	if err := svc.Start(ctx); err != nil {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
		return err
	}
	log.Printf("service %s started", name)
	return nil
}

// Stop stops a running service.
func (s *Services) Stop(ctx context.Context, name string) error {
	s.mu.Lock()
	svc, ok := s.services[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no service %q", name)
	}
	if !s.running[name] {
		s.mu.Unlock()
		return fmt.Errorf("not running")
	}
	s.running[name] = false
	s.mu.Unlock()

	if err := svc.Stop(ctx); err != nil {
		return err
	}
	log.Printf("service %s stopped", name)
	return nil
}

// StartAll starts every registered service, stopping at the first error.
func (s *Services) StartAll(ctx context.Context) error {
	for _, name := range s.Names() {
		if s.Running(name) {
			continue
		}
		if err := s.Start(ctx, name); err != nil {
			return fmt.Errorf("service %s: %w", name, err)
		}
	}
	return nil
}

// StopAll stops every running service, logging failures.
func (s *Services) StopAll(ctx context.Context) {
	for _, name := range s.Names() {
		if !s.Running(name) {
			continue
		}
		if err := s.Stop(ctx, name); err != nil {
			log.Printf("service %s: stop: %v", name, err)
		}
	}
}

// scriptRunner fires timed scripts once a second.
type scriptRunner struct {
	game   *Game
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (r *scriptRunner) Name() string { return "scripts" }

func (r *scriptRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go r.game.Scripts.Run(ctx, time.Second)
	return nil
}

// Stop cancels the runner without waiting for it. @service/stop runs
// under the world lock that a firing script may be waiting on.
func (r *scriptRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return nil
}
