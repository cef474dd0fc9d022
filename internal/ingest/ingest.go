// Package ingest is the reference RTP/MPEG-TS collaborator described in §10:
// a best-effort UDP receiver feeding the store through the same narrow
// interface any other producer would use. It is deliberately simple (no
// jitter buffer, no retransmission) since UDP is lossy by nature and the
// store's invariants do not depend on how samples arrive.
package ingest

import (
	"context"
	"net"

	"github.com/dholroyd/lowly/internal/log"
	"github.com/dholroyd/lowly/internal/store"
)

// Ingest reads RTP/MPEG-TS from a PacketConn and feeds store.Store.
type Ingest struct {
	store  *store.Store
	logger *log.Logger

	demux *tsDemuxer
}

// New returns an Ingest writing samples into s and logging through logger.
func New(s *store.Store, logger *log.Logger) *Ingest {
	ing := &Ingest{store: s, logger: logger}
	ing.demux = newTSDemuxer(s, logger)
	return ing
}

// Run reads RTP packets from conn until ctx is cancelled or conn errors.
// Each RTP payload is a whole number of 188-byte MPEG-TS packets, per §10.
func (ing *Ingest) Run(ctx context.Context, conn net.PacketConn) error {
	go func() {
		<-ctx.Done()
		conn.Close() //nolint:errcheck
	}()

	r := newRTPReceiver(ing.logger)
	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		payload, ok := r.receive(buf[:n])
		if !ok {
			continue
		}
		ing.demux.feed(payload)
	}
}
