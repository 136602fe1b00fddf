package config

import "time"

// ClientAuthMode selects how the listener verifies client certificates.
type ClientAuthMode string

const (
	// ClientAuthNone disables client certificate verification.
	ClientAuthNone ClientAuthMode = ""
	// ClientAuthStrict requires and verifies a client certificate.
	ClientAuthStrict ClientAuthMode = "strict"
	// ClientAuthOptional verifies a client certificate only when one is sent.
	ClientAuthOptional ClientAuthMode = "optional"
)

// Snapshot is one immutable TLS configuration value as emitted by a Source.
// The listener compiles each snapshot into a server context; snapshots are
// never mutated after they are produced.
type Snapshot struct {
	// CertPEM holds the PEM-encoded certificate chain, leaf first.
	CertPEM []byte
	// KeyPEM holds the PEM-encoded private key matching the leaf.
	KeyPEM []byte
	// ALPN lists the application protocols offered during negotiation,
	// most preferred first. Empty disables ALPN.
	ALPN []string
	// ClientAuth selects client certificate verification.
	ClientAuth ClientAuthMode
	// ClientCAPEM holds the PEM CA bundle used to verify client
	// certificates. Required when ClientAuth is not ClientAuthNone.
	ClientCAPEM []byte
	// MinVersion is the minimum accepted TLS version ("1.2", "1.3").
	// Empty means the package default.
	MinVersion string
	// ProducedAt records when the source emitted this snapshot.
	ProducedAt time.Time
}

// Source is an unbounded asynchronous sequence of configuration snapshots.
//
// The channel returned by Snapshots is expected to stay open for the life of
// the listener; a source that closes it signals that no further updates will
// ever arrive, and consumers retain the last installed configuration.
type Source interface {
	Snapshots() <-chan Snapshot
	Close() error
}

// StaticSource emits a fixed sequence of snapshots and then idles. It is the
// simplest Source: suitable for deployments whose TLS material never changes,
// and for tests that drive reloads by hand.
type StaticSource struct {
	ch chan Snapshot
}

// NewStaticSource returns a source pre-loaded with the given snapshots. The
// channel is buffered so emission never blocks construction.
func NewStaticSource(snapshots ...Snapshot) *StaticSource {
	ch := make(chan Snapshot, len(snapshots)+4)
	for _, s := range snapshots {
		if s.ProducedAt.IsZero() {
			s.ProducedAt = time.Now()
		}
		ch <- s
	}
	return &StaticSource{ch: ch}
}

// Snapshots returns the snapshot channel.
func (s *StaticSource) Snapshots() <-chan Snapshot { return s.ch }

// Push enqueues an additional snapshot. It is intended for tests that need to
// install a new configuration mid-run.
func (s *StaticSource) Push(snap Snapshot) {
	if snap.ProducedAt.IsZero() {
		snap.ProducedAt = time.Now()
	}
	s.ch <- snap
}

// Close is a no-op for the static source; the channel deliberately stays open
// so consumers keep their last installed configuration.
func (s *StaticSource) Close() error { return nil }
