// Package logclient defines the narrow interface the ingest engine uses to
// talk to the partitioned, at-least-once message log, plus a production
// adapter over github.com/segmentio/kafka-go and an in-memory fake used by
// tests.
package logclient

import (
	"context"
	"time"
)

// Partition identifies one partition of the subscribed topic.
type Partition int32

// Record is one delivered message: its partition, offset, and raw value
// bytes. The ingest engine never looks past Value until it hands the bytes
// to the configured record.Parser.
type Record struct {
	Partition Partition
	Offset    int64
	Value     []byte
}

// RebalanceListener is the capability the consumer exposes for partition
// revoke/assign notification, registered at Subscribe time (§9 design
// note: "model as two callback function values registered at subscribe
// time").
type RebalanceListener interface {
	// OnRevoke is called with the partitions being taken away from this
	// consumer, before the new assignment is known.
	OnRevoke(revoked []Partition)
	// OnAssign is called with the full new partition assignment.
	OnAssign(assigned []Partition)
}

// Consumer is the per-worker log-consumer session. A Consumer participates
// in exactly one consumer group and is owned by exactly one worker.
type Consumer interface {
	// Subscribe joins the consumer group for topic and registers listener
	// for rebalance notifications. It blocks until the subscription is
	// acknowledged by the group coordinator.
	Subscribe(ctx context.Context, topic string, listener RebalanceListener) error

	// Poll waits up to timeout for new records. A nil, empty slice with a
	// nil error means the timeout elapsed with nothing delivered. Poll
	// returns ErrWakeup if Wakeup was called concurrently.
	Poll(ctx context.Context, timeout time.Duration) ([]Record, error)

	// CommitAsync requests that the given next-to-consume offsets be
	// committed for their partitions. It does not block for the commit
	// to land; on commit failure the log client logs and the offsets
	// remain uncommitted, to be re-delivered on restart (at-least-once).
	CommitAsync(offsets map[Partition]int64)

	// Wakeup can be called from another goroutine to make a Poll call in
	// progress (or, if none is, the next Poll call) return ErrWakeup.
	Wakeup()

	// Close releases the consumer session, leaving the group.
	Close() error
}

// ErrWakeup is returned by Poll when Wakeup was called while it was
// blocked, or immediately if Wakeup was called before Poll started.
var ErrWakeup = wakeupError{}

type wakeupError struct{}

func (wakeupError) Error() string { return "logclient: consumer woken up" }
