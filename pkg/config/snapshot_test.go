package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSource_EmitsInOrder(t *testing.T) {
	a := Snapshot{CertPEM: []byte("a")}
	b := Snapshot{CertPEM: []byte("b")}

	src := NewStaticSource(a, b)
	defer src.Close()

	got := <-src.Snapshots()
	assert.Equal(t, []byte("a"), got.CertPEM)
	assert.False(t, got.ProducedAt.IsZero())

	got = <-src.Snapshots()
	assert.Equal(t, []byte("b"), got.CertPEM)
}

func TestStaticSource_Push(t *testing.T) {
	src := NewStaticSource()
	defer src.Close()

	select {
	case <-src.Snapshots():
		t.Fatal("empty source should not emit")
	default:
	}

	src.Push(Snapshot{CertPEM: []byte("pushed")})

	select {
	case got := <-src.Snapshots():
		assert.Equal(t, []byte("pushed"), got.CertPEM)
	case <-time.After(time.Second):
		t.Fatal("pushed snapshot never arrived")
	}
}

func TestStaticSource_CloseKeepsChannelOpen(t *testing.T) {
	src := NewStaticSource()
	require.NoError(t, src.Close())

	// Consumers must keep their last configuration: the channel idles
	// rather than reporting closure.
	select {
	case _, ok := <-src.Snapshots():
		if !ok {
			t.Fatal("snapshot channel was closed")
		}
		t.Fatal("unexpected snapshot")
	case <-time.After(50 * time.Millisecond):
	}
}
