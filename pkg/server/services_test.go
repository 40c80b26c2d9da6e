package server

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeService struct {
	name     string
	startErr error
	starts   int
	stops    int
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Start(context.Context) error {
	f.starts++
	return f.startErr
}

func (f *fakeService) Stop(context.Context) error {
	f.stops++
	return nil
}

func TestServicesLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewServices()
	web := &fakeService{name: "web"}
	telnet := &fakeService{name: "telnet"}
	s.Register(web)
	s.RegisterEssential(telnet)

	if diff := cmp.Diff([]string{"telnet", "web"}, s.Names()); diff != "" {
		t.Errorf("Names (-want +got):\n%s", diff)
	}
	if !s.Essential("telnet") || s.Essential("web") {
		t.Error("wrong essential flags")
	}
	if err := s.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !s.Running("web") || !s.Running("telnet") {
		t.Error("services not running after StartAll")
	}
	if err := s.Start(ctx, "web"); err == nil {
		t.Error("second Start succeeded")
	}
	if err := s.Stop(ctx, "web"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(ctx, "web"); err == nil {
		t.Error("second Stop succeeded")
	}
	s.StopAll(ctx)
	if s.Running("telnet") {
		t.Error("telnet still running after StopAll")
	}
	if web.starts != 1 || web.stops != 1 || telnet.starts != 1 || telnet.stops != 1 {
		t.Errorf("calls: web %d/%d telnet %d/%d", web.starts, web.stops, telnet.starts, telnet.stops)
	}
	if err := s.Start(ctx, "nope"); err == nil {
		t.Error("started an unknown service")
	}
}

func TestServicesStartFailure(t *testing.T) {
	s := NewServices()
	s.Register(&fakeService{name: "broken", startErr: errors.New("no port")})
	if err := s.StartAll(context.Background()); err == nil {
		t.Fatal("StartAll ignored a failing service")
	}
	if s.Running("broken") {
		t.Error("failed service marked running")
	}
}
