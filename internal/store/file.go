package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/magiconair/properties"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

const (
	fileExt        = ".properties"
	lockRetryDelay = 25 * time.Millisecond
	fileCacheSize  = 128
)

// FileStore keeps each namespace in <dir>/<namespace>.properties. Files stay
// hand editable; comments written by Set sit above the key they describe.
//
// Writes take an in-process mutex per namespace and an advisory lock on
// <file>.lock, then replace the file with a rename. Parsed files are cached
// until the file on disk changes.
type FileStore struct {
	dir   string
	log   *zap.Logger
	cache *lru.Cache[string, cachedFile]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type cachedFile struct {
	info  os.FileInfo
	props *properties.Properties
}

// NewFileStore creates the directory if needed. A leading ~ is expanded.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand locator directory %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create locator directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, cachedFile](fileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create locator file cache: %w", err)
	}
	return &FileStore{
		dir:   expanded,
		log:   logger.Named("store"),
		cache: cache,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the expanded directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file backing namespace.
func (s *FileStore) Path(namespace string) string {
	return filepath.Join(s.dir, namespace+fileExt)
}

func (s *FileStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	p, err := s.read(ctx, namespace)
	if err != nil {
		return "", false, err
	}
	v, ok := p.Get(key)
	return v, ok, nil
}

func (s *FileStore) List(ctx context.Context, namespace string) (map[string]string, error) {
	p, err := s.read(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return p.Map(), nil
}

// Comment returns the comment attached to key, if any.
func (s *FileStore) Comment(ctx context.Context, namespace, key string) (string, error) {
	p, err := s.read(ctx, namespace)
	if err != nil {
		return "", err
	}
	return p.GetComment(key), nil
}

func (s *FileStore) Set(ctx context.Context, namespace, key, value, comment string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	if key == "" {
		return errors.New("locator key must not be empty")
	}

	unlock, err := s.lock(ctx, namespace, false)
	if err != nil {
		return err
	}
	defer unlock()

	p, err := s.load(namespace)
	if err != nil {
		return err
	}
	if _, _, err := p.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	if comment != "" {
		p.SetComment(key, comment)
	}

	if err := s.writeAtomic(namespace, p); err != nil {
		return err
	}
	s.cache.Remove(namespace)
	s.log.Debug("Locator written", zap.String("namespace", namespace), zap.String("key", key))
	return nil
}

func (s *FileStore) read(ctx context.Context, namespace string) (*properties.Properties, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, namespace, true)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.loadCached(namespace)
}

// loadCached returns the cached parse of the namespace file while the file
// keeps the same identity, size and modification time. The result must not
// be modified.
func (s *FileStore) loadCached(namespace string) (*properties.Properties, error) {
	info, err := os.Stat(s.Path(namespace))
	if errors.Is(err, fs.ErrNotExist) {
		s.cache.Remove(namespace)
		return s.load(namespace)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat locator file for %q: %w", namespace, err)
	}

	if c, ok := s.cache.Get(namespace); ok && os.SameFile(c.info, info) &&
		c.info.ModTime().Equal(info.ModTime()) && c.info.Size() == info.Size() {
		return c.props, nil
	}

	p, err := s.load(namespace)
	if err != nil {
		return nil, err
	}
	s.cache.Add(namespace, cachedFile{info: info, props: p})
	return p, nil
}

// load reads the namespace file. A missing file is an empty namespace.
func (s *FileStore) load(namespace string) (*properties.Properties, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadFile(s.Path(namespace))
	if errors.Is(err, fs.ErrNotExist) {
		p = properties.NewProperties()
	} else if err != nil {
		return nil, fmt.Errorf("failed to load locator file for %q: %w", namespace, err)
	}
	p.DisableExpansion = true
	return p, nil
}

func (s *FileStore) writeAtomic(namespace string, p *properties.Properties) error {
	tmp, err := os.CreateTemp(s.dir, namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := p.WriteComment(tmp, "# ", properties.UTF8); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write locator file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync locator file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close locator file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(namespace)); err != nil {
		return fmt.Errorf("failed to replace locator file: %w", err)
	}
	return nil
}

func (s *FileStore) nsMutex(namespace string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[namespace]
	if !ok {
		m = &sync.Mutex{}
		s.locks[namespace] = m
	}
	return m
}

// lock serializes access to a namespace within the process and across
// processes. shared takes a read lock on the file.
func (s *FileStore) lock(ctx context.Context, namespace string, shared bool) (func(), error) {
	m := s.nsMutex(namespace)
	m.Lock()

	fl := flock.New(s.Path(namespace) + ".lock")
	var locked bool
	var err error
	if shared {
		locked, err = fl.TryRLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil || !locked {
		m.Unlock()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, fmt.Errorf("failed to lock locator file for %q: %w", namespace, err)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn("Failed to release locator file lock", zap.String("namespace", namespace), zap.Error(err))
		}
		m.Unlock()
	}, nil
}
