package server

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TextFiles holds the text shown at connection lifecycle points and the
// extra help topics.
type TextFiles struct {
	mu      sync.RWMutex
	connect string // connect.txt, the welcome screen
	motd    string // motd.txt, shown after login
	quit    string // quit.txt, shown on QUIT
	help    *HelpTopics
}

var textFileNames = []string{"connect.txt", "motd.txt", "quit.txt", "help.txt"}

// LoadTextFiles reads the tracked files from dir. Missing files are empty.
func LoadTextFiles(dir string) *TextFiles {
	tf := &TextFiles{}
	tf.Reload(dir)
	return tf
}

// Reload rereads every tracked file from dir.
func (tf *TextFiles) Reload(dir string) {
	read := func(name string) string {
		if dir == "" {
			return ""
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("textfiles: %s: %v", name, err)
			}
			return ""
		}
		return string(data)
	}
	connect, motd, quit := read("connect.txt"), read("motd.txt"), read("quit.txt")
	var help *HelpTopics
	if raw := read("help.txt"); raw != "" {
		var err error
		if help, err = ParseHelp(strings.NewReader(raw)); err != nil {
			log.Printf("textfiles: help.txt: %v", err)
		}
	}
	tf.mu.Lock()
	tf.connect, tf.motd, tf.quit, tf.help = connect, motd, quit, help
	tf.mu.Unlock()
}

func (tf *TextFiles) Connect() string { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.connect }
func (tf *TextFiles) Motd() string    { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.motd }
func (tf *TextFiles) Quit() string    { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.quit }

// Help returns the topics from help.txt, or nil.
func (tf *TextFiles) Help() *HelpTopics { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.help }

// fileWatcher reloads the game config and the text files when they change
// on disk.
type fileWatcher struct {
	game    *Game
	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewFileWatcher returns the "watcher" service for g.
func NewFileWatcher(g *Game) Service {
	return &fileWatcher{game: g}
}

func (w *fileWatcher) Name() string { return "watcher" }

func (w *fileWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	g := w.game
	var dirs []string
	if g.ConfPath != "" {
		dirs = append(dirs, filepath.Dir(g.ConfPath))
	}
	if g.Conf.TextDir != "" {
		dirs = append(dirs, g.Conf.TextDir)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}
		log.Printf("Watching %s for changes", dir)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()
	go w.loop(watcher)
	return nil
}

func (w *fileWatcher) loop(watcher *fsnotify.Watcher) {
	g := w.game
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			switch {
			case g.ConfPath != "" && filepath.Clean(event.Name) == filepath.Clean(g.ConfPath):
				gc, err := LoadGameConf(g.ConfPath)
				if err != nil {
					log.Printf("watcher: reload %s: %v", g.ConfPath, err)
					continue
				}
				g.WithWorld(func() { g.ApplyGameConf(gc) })
				log.Printf("watcher: reloaded %s", g.ConfPath)
			case g.Texts != nil && isTextFile(event.Name):
				g.Texts.Reload(g.Conf.TextDir)
				log.Printf("watcher: reloaded text files after %s changed", filepath.Base(event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: %v", err)
		}
	}
}

func isTextFile(path string) bool {
	base := filepath.Base(path)
	return slices.Contains(textFileNames, base)
}

func (w *fileWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}
