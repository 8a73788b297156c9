// Package mediastore owns every on-disk temporary media file: it
// encrypts assets at rest, hands out short-lived plaintext copies for
// uploads, and destroys everything it tracks either on TTL expiry or on
// explicit cleanup. No component outside this package ever holds the
// encrypted file's path; callers work with opaque handles.
package mediastore

import (
	"crypto/cipher"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/observability"
)

const (
	// DefaultTTL is how long an asset survives without explicit cleanup.
	DefaultTTL = time.Hour
	// DefaultSweepInterval is how often the background sweep looks for
	// expired assets.
	DefaultSweepInterval = 5 * time.Minute

	// shredPasses is the number of random-overwrite passes before unlink.
	shredPasses = 3
)

// Handle is an opaque reference to an ingested media asset.
type Handle string

// AssetInfo describes a tracked asset. The encrypted file's location is
// deliberately not part of it.
type AssetInfo struct {
	Handle    Handle        `json:"handle"`
	Filename  string        `json:"filename"`
	Size      int64         `json:"size"`
	MIMEType  string        `json:"mime_type"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"-"`
}

type asset struct {
	info    AssetInfo
	encPath string
}

// Store is the secure temporary file store. All bookkeeping mutations
// are serialized through a single mutex since Materialize, Destroy and
// the background sweep race.
type Store struct {
	dir           string
	aead          cipher.AEAD
	ttl           time.Duration
	sweepInterval time.Duration
	logger        *zap.Logger
	metrics       observability.MetricsRegistry

	mu        sync.Mutex
	assets    map[Handle]*asset
	plaintext map[string]Handle // materialized copies not yet released
	closed    bool

	stop chan struct{}
	done chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the default asset time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithSweepInterval overrides the background sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m observability.MetricsRegistry) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store rooted at dir and starts the background sweep.
// The directory is created if missing, owner-only.
func New(dir string, secret []byte, opts ...Option) (*Store, error) {
	aead, err := newAEAD(secret)
	if err != nil {
		return nil, &EncryptionError{Op: "init", Err: err}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	s := &Store{
		dir:           dir,
		aead:          aead,
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		logger:        zap.NewNop(),
		metrics:       observability.NewNoOpRegistry(),
		assets:        make(map[Handle]*asset),
		plaintext:     make(map[string]Handle),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweepLoop()
	return s, nil
}

// Ingest takes custody of uploaded media. The bytes are written to a
// store-controlled path with a randomized name, encrypted at rest, and
// the plaintext copy is shredded. On encryption failure the plaintext
// is shredded before the error is returned.
func (s *Store) Ingest(raw []byte, filename, mimeType string) (Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrStoreClosed
	}
	s.mu.Unlock()

	h := Handle(uuid.NewString())
	rawPath := filepath.Join(s.dir, string(h)+".raw")
	encPath := filepath.Join(s.dir, string(h)+".enc")

	if err := os.WriteFile(rawPath, raw, 0o600); err != nil {
		return "", &StorageError{Op: "write", Path: rawPath, Err: err}
	}

	ciphertext, err := seal(s.aead, raw)
	if err != nil {
		s.shred(rawPath)
		return "", &EncryptionError{Op: "seal", Err: err}
	}
	if err := os.WriteFile(encPath, ciphertext, 0o600); err != nil {
		s.shred(rawPath)
		return "", &StorageError{Op: "write", Path: encPath, Err: err}
	}
	s.shred(rawPath)

	info := AssetInfo{
		Handle:    h,
		Filename:  filename,
		Size:      int64(len(raw)),
		MIMEType:  mimeType,
		CreatedAt: time.Now(),
		TTL:       s.ttl,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.shred(encPath)
		return "", ErrStoreClosed
	}
	s.assets[h] = &asset{info: info, encPath: encPath}
	s.metrics.SetTrackedAssets(len(s.assets))
	s.mu.Unlock()

	s.logger.Debug("media ingested",
		zap.String("handle", string(h)),
		zap.String("filename", filename),
		zap.Int64("size", info.Size))
	return h, nil
}

// Metadata returns the asset descriptor for a tracked handle.
func (s *Store) Metadata(h Handle) (AssetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[h]
	if !ok {
		return AssetInfo{}, ErrUnknownHandle
	}
	return a.info, nil
}

// Materialize decrypts the asset into a fresh plaintext file and
// returns its path. The caller must Release the path when done.
// Concurrent Materialize calls for the same handle are legal; each
// produces an independent copy.
func (s *Store) Materialize(h Handle) (string, error) {
	s.mu.Lock()
	a, ok := s.assets[h]
	if !ok {
		s.mu.Unlock()
		return "", ErrUnknownHandle
	}
	encPath := a.encPath
	s.mu.Unlock()

	ciphertext, err := os.ReadFile(encPath)
	if err != nil {
		return "", &StorageError{Op: "read", Path: encPath, Err: err}
	}
	plain, err := open(s.aead, ciphertext)
	if err != nil {
		return "", &EncryptionError{Op: "open", Err: err}
	}

	plainPath := filepath.Join(s.dir, string(h)+"."+uuid.NewString()+".plain")
	if err := os.WriteFile(plainPath, plain, 0o600); err != nil {
		return "", &StorageError{Op: "write", Path: plainPath, Err: err}
	}

	s.mu.Lock()
	// the handle may have been destroyed while we were decrypting
	if _, ok := s.assets[h]; !ok {
		s.mu.Unlock()
		s.shred(plainPath)
		return "", ErrUnknownHandle
	}
	s.plaintext[plainPath] = h
	s.mu.Unlock()

	return plainPath, nil
}

// Release shreds a plaintext copy produced by Materialize. Releasing a
// path twice is safe.
func (s *Store) Release(path string) error {
	s.mu.Lock()
	delete(s.plaintext, path)
	s.mu.Unlock()
	return s.shred(path)
}

// Destroy overwrites the encrypted file with random data three times
// before unlinking, shreds any outstanding plaintext copies, and drops
// all bookkeeping. Destroying an already-destroyed handle is a no-op.
func (s *Store) Destroy(h Handle) error {
	return s.destroy(h, "explicit")
}

func (s *Store) destroy(h Handle, reason string) error {
	s.mu.Lock()
	a, ok := s.assets[h]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.assets, h)
	var copies []string
	for p, owner := range s.plaintext {
		if owner == h {
			copies = append(copies, p)
			delete(s.plaintext, p)
		}
	}
	s.metrics.SetTrackedAssets(len(s.assets))
	s.mu.Unlock()

	err := s.shred(a.encPath)
	for _, p := range copies {
		if serr := s.shred(p); err == nil {
			err = serr
		}
	}
	s.metrics.IncrementAssetsDestroyed(reason)
	s.logger.Debug("media destroyed",
		zap.String("handle", string(h)),
		zap.String("reason", reason))
	return err
}

// Count returns the number of tracked assets.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assets)
}

// Close stops the background sweep and force-destroys every remaining
// handle. The store rejects all operations afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := make([]Handle, 0, len(s.assets))
	for h := range s.assets {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	for _, h := range handles {
		if err := s.destroy(h, "shutdown"); err != nil {
			s.logger.Warn("destroy on shutdown", zap.String("handle", string(h)), zap.Error(err))
		}
	}
}

// sweepLoop destroys expired assets on a fixed interval for the
// lifetime of the store.
func (s *Store) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

// sweep destroys every asset whose age exceeds its TTL.
func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	var expired []Handle
	for h, a := range s.assets {
		if now.Sub(a.info.CreatedAt) > a.info.TTL {
			expired = append(expired, h)
		}
	}
	s.mu.Unlock()

	for _, h := range expired {
		if err := s.destroy(h, "ttl_sweep"); err != nil {
			s.logger.Warn("sweep destroy", zap.String("handle", string(h)), zap.Error(err))
		}
	}
	if len(expired) > 0 {
		s.logger.Info("media sweep", zap.Int("destroyed", len(expired)))
	}
}

// shred overwrites the file with random bytes shredPasses times, then
// unlinks it. A missing file is not an error.
func (s *Store) shred(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &StorageError{Op: "stat", Path: path, Err: err}
	}
	size := fi.Size()

	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return &StorageError{Op: "open", Path: path, Err: err}
	}
	for pass := 0; pass < shredPasses; pass++ {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			break
		}
		if _, err := io.CopyN(f, rand.Reader, size); err != nil {
			break
		}
		if err := f.Sync(); err != nil {
			break
		}
	}
	if err := f.Close(); err != nil {
		s.logger.Warn("shred close", zap.String("path", path), zap.Error(err))
	}
	if err := os.Remove(path); err != nil {
		return &StorageError{Op: "remove", Path: path, Err: err}
	}
	return nil
}
