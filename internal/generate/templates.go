package generate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultSystemPrompt is the compiled-in fallback used when no template
// file can be read.
const defaultSystemPrompt = `You are an expert Blender Python (bpy) developer.
Generate clean, working Python code for Blender based on user descriptions.

Requirements:
- Always clear existing objects first
- Import necessary modules (bpy, math, mathutils)
- Add clear comments
- Use realistic scales
- Return ONLY Python code in a code block
- No explanations outside the code block

Format:
` + "```python" + `
import bpy
# Your code here
` + "```" + `
`

// TemplateStore loads system-instruction templates from a directory and
// caches them. An optional watcher invalidates cache entries when template
// files change on disk, so edits take effect without restarting.
type TemplateStore struct {
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewTemplateStore creates a store reading templates from dir.
func NewTemplateStore(dir string, logger *zap.Logger) *TemplateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateStore{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// templateFile maps a prompt type to its filename. The base template has a
// distinct name; every specialized template follows the _expert convention.
func templateFile(promptType string) string {
	switch promptType {
	case "modeling", "material", "scene", "animation":
		return promptType + "_expert.txt"
	default:
		return "base_system_prompt.txt"
	}
}

// Get returns the system instruction for a prompt type. A missing
// specialized template falls back to the base template; if that cannot be
// read either, the compiled-in default is returned. Get never fails.
func (s *TemplateStore) Get(promptType string) string {
	name := templateFile(promptType)

	s.mu.RLock()
	cached, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return cached
	}

	content, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil && name != templateFile("base") {
		s.logger.Warn("template not found, falling back to base",
			zap.String("template", name), zap.Error(err))
		return s.Get("base")
	}
	if err != nil {
		s.logger.Warn("base template not readable, using built-in default", zap.Error(err))
		return defaultSystemPrompt
	}

	s.mu.Lock()
	s.cache[name] = string(content)
	s.mu.Unlock()

	s.logger.Debug("loaded template", zap.String("template", name))
	return string(content)
}

// Watch invalidates cached templates when their files change. It blocks
// until ctx is done; run it in its own goroutine.
func (s *TemplateStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			s.mu.Lock()
			if _, cached := s.cache[name]; cached {
				delete(s.cache, name)
				s.logger.Info("template changed, cache invalidated", zap.String("template", name))
			}
			s.mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("template watcher error", zap.Error(err))
		}
	}
}
