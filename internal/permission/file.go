package permission

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// Grants is the on-disk grant state an operator edits.
type Grants struct {
	Granted []string        `yaml:"granted"`
	Denied  []string        `yaml:"denied"`
	Pending []PendingPrompt `yaml:"pending"`
}

// PendingPrompt is a prompt waiting for an operator decision.
type PendingPrompt struct {
	Permission  string    `yaml:"permission"`
	RequestCode int       `yaml:"request_code"`
	RequestedAt time.Time `yaml:"requested_at"`
}

func (g *Grants) forget(perm string) {
	g.Granted = slices.DeleteFunc(g.Granted, func(p string) bool { return p == perm })
	g.Denied = slices.DeleteFunc(g.Denied, func(p string) bool { return p == perm })
	g.Pending = slices.DeleteFunc(g.Pending, func(p PendingPrompt) bool { return p.Permission == perm })
}

// ReadGrants loads the grants file under a shared lock. A missing file
// reads as no grants.
func ReadGrants(path string) (Grants, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return Grants{}, fmt.Errorf("lock grants: %w", err)
	}
	defer func() { _ = lock.Unlock() }()
	return readGrants(path)
}

func readGrants(path string) (Grants, error) {
	var g Grants
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return g, nil
	}
	if err != nil {
		return g, fmt.Errorf("read grants: %w", err)
	}
	if err := yaml.Unmarshal(b, &g); err != nil {
		return g, fmt.Errorf("parse grants %s: %w", path, err)
	}
	return g, nil
}

// UpdateGrants applies fn to the grants file under an exclusive lock and
// replaces the file atomically.
func UpdateGrants(path string, fn func(g *Grants)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("grants dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock grants: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	g, err := readGrants(path)
	if err != nil {
		return err
	}
	fn(&g)

	b, err := yaml.Marshal(&g)
	if err != nil {
		return fmt.Errorf("encode grants: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".grants-*")
	if err != nil {
		return fmt.Errorf("write grants: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write grants: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write grants: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Decide records an operator decision for perm, clearing any pending prompt.
func Decide(path, perm string, granted bool) error {
	return UpdateGrants(path, func(g *Grants) {
		g.forget(perm)
		if granted {
			g.Granted = append(g.Granted, perm)
		} else {
			g.Denied = append(g.Denied, perm)
		}
	})
}

// FileAuthority keeps grant state in a YAML file. Prompts are written to
// the pending list and resolve when the file shows a decision.
type FileAuthority struct {
	path    string
	log     *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	waiters map[string][]func(bool)

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewFileAuthority(path string, log *slog.Logger) (*FileAuthority, error) {
	if log == nil {
		log = slog.Default()
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("grants dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("grants watcher: %w", err)
	}
	// Watch the directory: editors and UpdateGrants replace the file.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	a := &FileAuthority{
		path:    path,
		log:     log,
		watcher: w,
		waiters: map[string][]func(bool){},
		stop:    make(chan struct{}),
	}
	a.wg.Add(1)
	go a.watch()
	return a, nil
}

func (a *FileAuthority) Path() string { return a.path }

func (a *FileAuthority) Close() error {
	close(a.stop)
	err := a.watcher.Close()
	a.wg.Wait()
	return err
}

func (a *FileAuthority) Granted(_ context.Context, perm string) (bool, error) {
	g, err := ReadGrants(a.path)
	if err != nil {
		return false, err
	}
	return slices.Contains(g.Granted, perm), nil
}

// Prompt adds perm to the pending list, replacing any earlier denial.
func (a *FileAuthority) Prompt(_ context.Context, perm string, requestCode int, done func(bool)) error {
	err := UpdateGrants(a.path, func(g *Grants) {
		if slices.Contains(g.Granted, perm) {
			return
		}
		g.forget(perm)
		g.Pending = append(g.Pending, PendingPrompt{
			Permission:  perm,
			RequestCode: requestCode,
			RequestedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.waiters[perm] = append(a.waiters[perm], done)
	a.mu.Unlock()

	a.log.Info("permission prompt pending", "permission", perm, "request_code", requestCode, "grants_file", a.path)
	// A decision may have landed between the write and the registration.
	a.settle()
	return nil
}

func (a *FileAuthority) watch() {
	defer a.wg.Done()
	for {
		select {
		case <-a.stop:
			return
		case ev, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != a.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				a.settle()
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			a.log.Warn("grants watcher error", "err", err)
		}
	}
}

// settle resolves waiters whose permission now has a decision.
func (a *FileAuthority) settle() {
	g, err := ReadGrants(a.path)
	if err != nil {
		a.log.Warn("reading grants", "err", err)
		return
	}

	type decided struct {
		fns     []func(bool)
		granted bool
	}
	var fire []decided

	a.mu.Lock()
	for perm, fns := range a.waiters {
		switch {
		case slices.Contains(g.Granted, perm):
			fire = append(fire, decided{fns, true})
		case slices.Contains(g.Denied, perm):
			fire = append(fire, decided{fns, false})
		default:
			continue
		}
		delete(a.waiters, perm)
	}
	a.mu.Unlock()

	for _, d := range fire {
		for _, fn := range d.fns {
			fn(d.granted)
		}
	}
}
