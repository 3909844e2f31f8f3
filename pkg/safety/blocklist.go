package safety

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// BlockList is the manual deny-list of change ids (spec §4.6 gate 1),
// backed by a plain-text file (one change id per line, `#`-prefixed
// comments ignored) that is hot-reloaded on write via fsnotify, the same
// pattern pkg/config/watch.go uses for its YAML file.
type BlockList struct {
	mu      sync.RWMutex
	ids     map[string]bool
	path    string
	watcher *fsnotify.Watcher
}

// NewBlockList loads path (if it exists) and starts watching it for
// changes. A missing file is treated as an empty block list.
func NewBlockList(path string) (*BlockList, error) {
	bl := &BlockList{ids: make(map[string]bool), path: path}
	if err := bl.reload(); err != nil {
		return nil, err
	}

	if path == "" {
		return bl, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	bl.watcher = watcher
	if err := watcher.Add(dirOf(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	go bl.watch()
	return bl, nil
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

func (bl *BlockList) watch() {
	for event := range bl.watcher.Events {
		if event.Name != bl.path {
			continue
		}
		if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
			_ = bl.reload()
		}
	}
}

func (bl *BlockList) reload() error {
	f, err := os.Open(bl.path)
	if os.IsNotExist(err) {
		bl.mu.Lock()
		bl.ids = make(map[string]bool)
		bl.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	ids := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids[line] = true
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	bl.mu.Lock()
	bl.ids = ids
	bl.mu.Unlock()
	return nil
}

// Blocked reports whether changeID is on the manual deny-list.
func (bl *BlockList) Blocked(changeID string) bool {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	return bl.ids[changeID]
}

// Close stops the file watcher, if one was started.
func (bl *BlockList) Close() error {
	if bl.watcher == nil {
		return nil
	}
	return bl.watcher.Close()
}
