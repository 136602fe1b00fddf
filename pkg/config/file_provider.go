package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileProvider is a Source backed by certificate and key files on disk. It
// emits an initial snapshot at construction and a fresh snapshot whenever a
// watched file is rewritten, so certificate rotation never requires a restart.
//
// The parent directories are watched rather than the files themselves:
// renew tools typically replace certificates via rename, which drops a watch
// that was registered on the old inode.
type FileProvider struct {
	tls     TLSConfig
	watcher *fsnotify.Watcher
	ch      chan Snapshot
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// NewFileProvider builds a provider for the given TLS file configuration and
// begins watching. The initial snapshot is emitted before NewFileProvider
// returns; if the files cannot be read yet, the provider starts empty and
// emits once they appear.
func NewFileProvider(tls TLSConfig, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := tls.Validate(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &FileProvider{
		tls:     tls,
		watcher: watcher,
		ch:      make(chan Snapshot, 1),
		cancel:  cancel,
		logger:  logger.With("component", "config.file_provider"),
	}

	dirs := map[string]bool{}
	for _, f := range p.watchedFiles() {
		dirs[filepath.Dir(filepath.Clean(f))] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			cancel()
			_ = watcher.Close()
			return nil, fmt.Errorf("watch directory %q: %w", dir, err)
		}
	}

	if snap, err := p.read(); err != nil {
		p.logger.Warn("initial certificate read failed; waiting for files",
			"error", err)
	} else {
		p.ch <- snap
	}

	go p.watchLoop(ctx)
	return p, nil
}

// Snapshots returns the snapshot channel.
func (p *FileProvider) Snapshots() <-chan Snapshot { return p.ch }

// Close stops the watcher. The snapshot channel is left open so consumers
// retain their last installed configuration.
func (p *FileProvider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *FileProvider) watchedFiles() []string {
	files := []string{p.tls.CertFile, p.tls.KeyFile}
	if p.tls.ClientAuth.CAFile != "" {
		files = append(files, p.tls.ClientAuth.CAFile)
	}
	return files
}

func (p *FileProvider) relevant(name string) bool {
	clean := filepath.Clean(name)
	for _, f := range p.watchedFiles() {
		if clean == filepath.Clean(f) {
			return true
		}
	}
	return false
}

// read loads all watched files into one snapshot.
func (p *FileProvider) read() (Snapshot, error) {
	certPEM, err := os.ReadFile(p.tls.CertFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read certificate file: %w", err)
	}
	keyPEM, err := os.ReadFile(p.tls.KeyFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read key file: %w", err)
	}

	snap := Snapshot{
		CertPEM:    certPEM,
		KeyPEM:     keyPEM,
		ALPN:       append([]string(nil), p.tls.ALPN...),
		ClientAuth: ClientAuthMode(p.tls.ClientAuth.Mode),
		MinVersion: p.tls.MinVersion,
		ProducedAt: time.Now(),
	}
	if p.tls.ClientAuth.CAFile != "" {
		caPEM, err := os.ReadFile(p.tls.ClientAuth.CAFile)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read client CA file: %w", err)
		}
		snap.ClientCAPEM = caPEM
	}
	return snap, nil
}

func (p *FileProvider) watchLoop(ctx context.Context) {
	// Rotation tools write cert and key as separate events; debounce so one
	// rotation produces one snapshot instead of a half-updated pair.
	const debounce = 150 * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if !p.relevant(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			p.logger.Debug("certificate file changed",
				"file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			snap, err := p.read()
			if err != nil {
				p.logger.Error("certificate reload read failed", "error", err)
				continue
			}
			p.emit(snap)
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("certificate file watcher error", "error", err)
		}
	}
}

// emit delivers a snapshot without blocking the watch loop: if the consumer
// has not drained the previous value yet, the stale one is replaced.
func (p *FileProvider) emit(snap Snapshot) {
	for {
		select {
		case p.ch <- snap:
			return
		default:
			select {
			case <-p.ch:
			default:
			}
		}
	}
}
