// Package watcher tails a session's transcript file and publishes each new
// line's classification to a Redis pub/sub channel. Each session gets at
// most one active watcher goroutine, self-cancelling after an idle period
// with neither a new Ensure call nor new lines in the file.
package watcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"
)

// DefaultIdleTimeout matches the commonly-used testing value; production
// deployments may raise it (e.g. to one hour) via Registry.IdleTimeout.
// Both values are legitimate depending on deployment — left configurable
// rather than hardcoded to one or the other.
const DefaultIdleTimeout = 60 * time.Second

type activeWatcher struct {
	cancel       context.CancelFunc
	lastActivity time.Time
	mu           sync.Mutex
}

func (a *activeWatcher) touch() {
	a.mu.Lock()
	a.lastActivity = time.Now()
	a.mu.Unlock()
}

func (a *activeWatcher) idleSince() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.lastActivity)
}

// Registry tracks the active per-session watchers. The map is the one
// piece of shared mutable state in the system and is guarded by mu.
type Registry struct {
	Redis       *redis.Client
	IdleTimeout time.Duration
	Logger      *slog.Logger

	mu       sync.Mutex
	watchers map[string]*activeWatcher
}

// NewRegistry builds an empty registry with the given idle timeout
// (DefaultIdleTimeout if zero).
func NewRegistry(rdb *redis.Client, idleTimeout time.Duration, logger *slog.Logger) *Registry {
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		Redis:       rdb,
		IdleTimeout: idleTimeout,
		Logger:      logger,
		watchers:    make(map[string]*activeWatcher),
	}
}

// Ensure refreshes an existing watcher's activity timer, or spawns a new
// one tailing from the file's current end-of-file.
func (r *Registry) Ensure(sessionID, transcriptPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.watchers[sessionID]; ok {
		w.touch()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &activeWatcher{cancel: cancel, lastActivity: time.Now()}
	r.watchers[sessionID] = w

	go r.run(ctx, sessionID, transcriptPath, w)
}

// Stop cancels and removes a session's watcher, if one is active.
func (r *Registry) Stop(sessionID string) {
	r.mu.Lock()
	w, ok := r.watchers[sessionID]
	if ok {
		delete(r.watchers, sessionID)
	}
	r.mu.Unlock()

	if ok {
		w.cancel()
	}
}

// Active returns the session IDs with a currently-running watcher.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.watchers))
	for id := range r.watchers {
		out = append(out, id)
	}
	return out
}

func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	delete(r.watchers, sessionID)
	r.mu.Unlock()
}

// run is the per-session watcher goroutine lifecycle: tail from current
// EOF, react to fsnotify write events, self-cancel after IdleTimeout of no
// activity, and restart from the new EOF on truncation/rotation.
func (r *Registry) run(ctx context.Context, sessionID, path string, w *activeWatcher) {
	defer r.remove(sessionID)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		r.Logger.Warn("watcher: failed to create fsnotify watcher", "session_id", sessionID, "err", err)
		return
	}
	defer fsw.Close()

	if err := fsw.Add(path); err != nil {
		r.Logger.Warn("watcher: failed to watch file", "session_id", sessionID, "path", path, "err", err)
		return
	}

	pos := currentEOF(path)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				newPos, lines := tailFile(path, pos)
				if newPos < pos {
					// File was truncated or rotated: restart from the new EOF.
					pos = currentEOF(path)
				} else {
					pos = newPos
				}
				for _, line := range lines {
					r.publishLine(ctx, sessionID, line)
				}
				if len(lines) > 0 {
					w.touch()
				}
			}

		case <-fsw.Errors:
			// Non-fatal; keep watching.

		case <-ticker.C:
			if w.idleSince() > r.IdleTimeout {
				return
			}
		}
	}
}

func currentEOF(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// tailFile reads any bytes appended since pos, returning the new offset
// and the non-empty lines read. A trailing fragment with no newline yet is
// not consumed: the offset stops at the last newline so the fragment is
// read again, complete, on a later call.
func tailFile(path string, pos int64) (int64, []string) {
	f, err := os.Open(path)
	if err != nil {
		return pos, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return pos, nil
	}
	if info.Size() < pos {
		return info.Size(), nil // truncated
	}

	if _, err := f.Seek(pos, 0); err != nil {
		return pos, nil
	}

	buf := make([]byte, info.Size()-pos)
	n, _ := f.Read(buf)
	content := string(buf[:n])

	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			line := content[start:i]
			if line != "" {
				lines = append(lines, line)
			}
			start = i + 1
		}
	}
	return pos + int64(start), lines
}

type classifiedLine struct {
	SessionID    string   `json:"session_id"`
	Type         string   `json:"type"`
	Role         string   `json:"role"`
	ContentTypes []string `json:"content_types"`
	Raw          string   `json:"raw"`
}

// classifyLine parses one JSONL transcript line and extracts its type,
// role, and the set of distinct content-block types it carries.
func classifyLine(sessionID, line string) classifiedLine {
	out := classifiedLine{SessionID: sessionID, Raw: line, ContentTypes: []string{"text"}}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return out
	}

	if t, ok := parsed["type"].(string); ok {
		out.Type = t
	}

	msg, _ := parsed["message"].(map[string]any)
	if msg == nil {
		msg = parsed
	}
	if role, ok := msg["role"].(string); ok {
		out.Role = role
	}

	switch content := msg["content"].(type) {
	case string:
		out.ContentTypes = []string{"text"}
	case []any:
		seen := map[string]bool{}
		var types []string
		for _, raw := range content {
			block, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			t, _ := block["type"].(string)
			if t == "" {
				t = "text"
			}
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
		if len(types) > 0 {
			out.ContentTypes = types
		}
	}

	return out
}

func (r *Registry) publishLine(ctx context.Context, sessionID, line string) {
	classified := classifyLine(sessionID, line)
	payload, err := json.Marshal(classified)
	if err != nil {
		return
	}
	channel := "transcript:" + sessionID
	if err := r.Redis.Publish(ctx, channel, payload).Err(); err != nil {
		r.Logger.Warn("watcher: publish failed", "session_id", sessionID, "err", err)
	}
}
