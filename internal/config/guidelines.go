package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// CareerGuidelines holds the level expectations injected into the
// consolidation prompt so themes are framed against the user's career stage.
type CareerGuidelines struct {
	Levels []GuidelineLevel `yaml:"levels"`
}

// GuidelineLevel describes what one career level is expected to demonstrate.
type GuidelineLevel struct {
	Name         string   `yaml:"name"`
	Expectations []string `yaml:"expectations"`
}

// PromptContext renders the guidelines as plain text for the model prompt.
func (g *CareerGuidelines) PromptContext() string {
	if g == nil || len(g.Levels) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("CAREER GUIDELINES:\n")
	for _, level := range g.Levels {
		b.WriteString(fmt.Sprintf("%s:\n", level.Name))
		for _, exp := range level.Expectations {
			b.WriteString(fmt.Sprintf("- %s\n", exp))
		}
	}
	return b.String()
}

// GuidelineStore serves the current guidelines and hot-reloads them when the
// backing file changes.
type GuidelineStore struct {
	mu         sync.RWMutex
	guidelines *CareerGuidelines
	path       string
}

// LoadGuidelines parses the YAML guidelines file and returns a store. A
// missing file is not fatal: the store starts empty and picks the file up if
// it appears later.
func LoadGuidelines(path string) (*GuidelineStore, error) {
	store := &GuidelineStore{path: path, guidelines: &CareerGuidelines{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Printf("⚠️  [GUIDELINES] %s not found, consolidation runs without career context", path)
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guidelines file: %w", err)
	}

	var g CareerGuidelines
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse guidelines YAML: %w", err)
	}

	store.guidelines = &g
	log.Printf("✅ [GUIDELINES] Loaded %d career levels from %s", len(g.Levels), path)
	return store, nil
}

// Current returns the guidelines as of the last successful load.
func (s *GuidelineStore) Current() *CareerGuidelines {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guidelines
}

func (s *GuidelineStore) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		log.Printf("⚠️  [GUIDELINES] Reload failed: %v (keeping previous guidelines)", err)
		return
	}

	var g CareerGuidelines
	if err := yaml.Unmarshal(data, &g); err != nil {
		log.Printf("⚠️  [GUIDELINES] Invalid YAML on reload: %v (keeping previous guidelines)", err)
		return
	}

	s.mu.Lock()
	s.guidelines = &g
	s.mu.Unlock()
	log.Printf("🔄 [GUIDELINES] Reloaded %d career levels", len(g.Levels))
}

// Watch hot-reloads the guidelines when the file changes. Watches the
// containing directory, which is more reliable than watching the file itself.
// Blocks until the watcher fails; run it in a goroutine.
func (s *GuidelineStore) Watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  [GUIDELINES] Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(s.path)
	if err != nil {
		log.Printf("⚠️  [GUIDELINES] Failed to resolve %s: %v", s.path, err)
		return
	}
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  [GUIDELINES] Failed to watch %s: %v", dir, err)
		return
	}

	log.Printf("👁️  [GUIDELINES] Watching %s for changes (hot-reload enabled)", s.path)

	var debounceTimer *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				// Debounce editors that fire multiple write events per save
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(500*time.Millisecond, s.reload)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  [GUIDELINES] Watcher error: %v", err)
		}
	}
}
