package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/crystal-mush/mushkit/pkg/boltstore"
	"github.com/crystal-mush/mushkit/pkg/create"
	"github.com/crystal-mush/mushkit/pkg/server"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("MUSHKIT_CONF", ""), "Path to game config file (env: MUSHKIT_CONF)")
	port := flag.Int("port", 0, "Telnet port, overrides config")
	dataDir := flag.String("datadir", "", "Data directory, overrides config")
	logFile := flag.String("log", envDefault("MUSHKIT_LOG", ""), "Also write the log to this file, rotated (env: MUSHKIT_LOG)")
	superuser := flag.String("superuser", envDefault("MUSHKIT_SUPERUSER", ""), "Create or reset a superuser as name:password (env: MUSHKIT_SUPERUSER)")
	flag.Parse()

	if *logFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
		}))
	}
	log.Printf("Welcome to %s", server.VersionString())

	gc, err := server.LoadGameConf(*confFile)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	if *port != 0 {
		gc.Port = *port
	}
	if *dataDir != "" {
		gc.DataDir = *dataDir
	}
	if err := os.MkdirAll(gc.DataDir, 0o755); err != nil {
		log.Fatalf("Data directory: %v", err)
	}

	accounts, err := sqlstore.Open(gc.DataPath(gc.AccountsFile), time.Duration(gc.SQLBusyTimeout)*time.Millisecond)
	if err != nil {
		log.Fatalf("Accounts: %v", err)
	}
	store, err := boltstore.Open(gc.DataPath(gc.BoltFile))
	if err != nil {
		accounts.Close()
		log.Fatalf("Object store: %v", err)
	}
	if store.HasData() {
		if err := store.LoadAll(); err != nil {
			log.Fatalf("Loading objects: %v", err)
		}
	}
	log.Printf("Loaded %d objects from %s", store.DB().Len(), store.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	game := server.NewGame(store.DB(), accounts, store)
	game.ConfPath = *confFile
	game.ApplyGameConf(gc)
	if err := game.Seed(ctx); err != nil {
		log.Fatalf("Seeding world: %v", err)
	}
	if *superuser != "" {
		if err := ensureSuperuser(ctx, game, *superuser); err != nil {
			log.Fatalf("Superuser: %v", err)
		}
	}

	recs, err := store.LoadScripts()
	if err != nil {
		log.Printf("WARNING: failed to load scripts: %v", err)
	}
	if n := game.Scripts.Restore(recs); n > 0 {
		log.Printf("Restored %d scripts", n)
	}

	if gc.IsCleartext() {
		game.Services.RegisterEssential(server.NewTelnetServer(game, ":"+strconv.Itoa(gc.Port)))
	}
	if gc.SSHEnabled {
		game.Services.Register(server.NewSSHServer(game, ":"+strconv.Itoa(gc.SSHPort), gc.DataPath(gc.SSHHostKey)))
	}
	if gc.WebEnabled {
		wc := server.WebConfigFrom(gc)
		if wc.JWTSecret == "" {
			log.Printf("WARNING: jwt_secret not set, tokens will not survive a restart")
			wc.JWTSecret = server.GenerateJWTSecret()
		}
		game.Services.Register(server.NewWebServer(game, wc))
	}
	game.Services.Register(server.NewFileWatcher(game))

	if err := game.Services.StartAll(ctx); err != nil {
		log.Fatalf("Starting services: %v", err)
	}
	log.Printf("%s is up: %s", gc.MudName, strings.Join(game.Services.Names(), ", "))

	<-ctx.Done()
	log.Printf("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	game.Services.StopAll(shutdownCtx)
	if err := game.SaveAll(); err != nil {
		log.Printf("ERROR: final save: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("ERROR: closing object store: %v", err)
	}
	if err := accounts.Close(); err != nil {
		log.Printf("ERROR: closing accounts: %v", err)
	}
	log.Printf("Goodbye.")
}

// ensureSuperuser creates the named superuser, or resets the password of
// an existing player and grants it superuser.
func ensureSuperuser(ctx context.Context, game *server.Game, spec string) error {
	name, password, ok := strings.Cut(spec, ":")
	if !ok || name == "" || password == "" {
		return errors.New("expected name:password")
	}
	p, err := game.Accounts.PlayerByName(ctx, name)
	switch {
	case err == nil:
		if err := game.Accounts.SetPassword(ctx, p.ID, password); err != nil {
			return err
		}
		if err := game.Accounts.SetSuperuser(ctx, p.ID, true); err != nil {
			return err
		}
		log.Printf("Superuser %s password reset", p.Name)
		return nil
	case errors.Is(err, sqlstore.ErrNotFound):
		p, _, err := game.Factory.CreatePlayer(ctx, create.PlayerSpec{
			Name:      name,
			Password:  password,
			Superuser: true,
			Location:  game.StartingRoom(),
		})
		if err != nil {
			return err
		}
		log.Printf("Superuser %s created", p.Name)
		return nil
	default:
		return err
	}
}
