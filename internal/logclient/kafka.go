package logclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaConsumer implements Consumer over github.com/segmentio/kafka-go's
// low-level ConsumerGroup API, which is the layer that exposes explicit
// generation-boundary (rebalance) notifications — the high-level
// kafka.Reader does not surface revoke/assign callbacks.
type KafkaConsumer struct {
	brokers []string
	groupID string

	group *kafka.ConsumerGroup

	mu         sync.Mutex
	generation *kafka.Generation
	topic      string
	readers    map[Partition]*kafka.Reader
	assigned   map[Partition]struct{}

	wakeupCh chan struct{}
	closing  atomic.Bool
	log      *slog.Logger
}

// NewKafkaConsumer prepares (but does not yet join) a consumer group
// against brokers. Only the broker list and group id are taken from the
// log-consumer-properties mapping of §3; no other property is applied.
// Offsets are committed only through CommitAsync, and message values are
// handed on as raw bytes.
func NewKafkaConsumer(brokers []string, groupID string) (*KafkaConsumer, error) {
	if groupID == "" {
		return nil, fmt.Errorf("logclient: group id must not be empty")
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("logclient: at least one broker is required")
	}
	return &KafkaConsumer{
		brokers:  brokers,
		groupID:  groupID,
		readers:  make(map[Partition]*kafka.Reader),
		assigned: make(map[Partition]struct{}),
		wakeupCh: make(chan struct{}, 1),
		log:      slog.Default().With("component", "logclient.kafka", "group", groupID),
	}, nil
}

func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, listener RebalanceListener) error {
	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:      c.groupID,
		Brokers: c.brokers,
		Topics:  []string{topic},
	})
	if err != nil {
		return fmt.Errorf("logclient: joining consumer group %q: %w", c.groupID, err)
	}
	c.group = group
	c.topic = topic

	gen, err := c.group.Next(ctx)
	if err != nil {
		return fmt.Errorf("logclient: awaiting first generation: %w", err)
	}
	c.applyGeneration(gen, topic, listener)

	go c.watchGenerations(ctx, topic, listener)
	return nil
}

// watchGenerations keeps calling group.Next in a loop for as long as the
// group is joined: a *kafka.Generation is only valid until the next
// rebalance, so observing every rebalance after the first (not just the
// one in Subscribe) requires re-calling Next each time one completes.
func (c *KafkaConsumer) watchGenerations(ctx context.Context, topic string, listener RebalanceListener) {
	for {
		gen, err := c.group.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !c.closing.Load() {
				c.log.Warn("consumer group generation watch stopped", "err", err)
			}
			return
		}
		c.applyGeneration(gen, topic, listener)
	}
}

func (c *KafkaConsumer) applyGeneration(gen *kafka.Generation, topic string, listener RebalanceListener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previouslyAssigned := make([]Partition, 0, len(c.assigned))
	for p := range c.assigned {
		previouslyAssigned = append(previouslyAssigned, p)
	}
	if len(previouslyAssigned) > 0 && listener != nil {
		listener.OnRevoke(previouslyAssigned)
	}

	for _, r := range c.readers {
		_ = r.Close()
	}
	c.readers = make(map[Partition]*kafka.Reader)
	c.assigned = make(map[Partition]struct{})

	assignments := gen.Assignments[topic]
	newAssignment := make([]Partition, 0, len(assignments))
	for _, a := range assignments {
		p := Partition(a.ID)
		c.assigned[p] = struct{}{}
		newAssignment = append(newAssignment, p)
		c.readers[p] = gen.PartitionReader(topic, a.ID, kafka.FirstOffset)
	}
	c.generation = gen

	if listener != nil {
		listener.OnAssign(newAssignment)
	}
	c.log.Info("rebalance applied", "partitions", newAssignment)
}

func (c *KafkaConsumer) Poll(ctx context.Context, timeout time.Duration) ([]Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-c.wakeupCh:
		return nil, ErrWakeup
	default:
	}

	c.mu.Lock()
	readers := make(map[Partition]*kafka.Reader, len(c.readers))
	for p, r := range c.readers {
		readers[p] = r
	}
	c.mu.Unlock()

	var records []Record
	for p, r := range readers {
		msg, err := r.ReadMessage(pollCtx)
		if err != nil {
			continue // timeout or transient read error on this partition; try others
		}
		records = append(records, Record{Partition: p, Offset: msg.Offset, Value: msg.Value})
	}

	select {
	case <-c.wakeupCh:
		return nil, ErrWakeup
	default:
	}

	return records, nil
}

func (c *KafkaConsumer) CommitAsync(offsets map[Partition]int64) {
	c.mu.Lock()
	gen := c.generation
	topic := c.topic
	c.mu.Unlock()
	if gen == nil {
		return
	}
	commits := make(map[string][]kafka.PartitionOffset, 1)
	for p, off := range offsets {
		commits[topic] = append(commits[topic], kafka.PartitionOffset{Partition: int(p), Offset: off})
	}
	go func() {
		if err := gen.CommitOffsets(commits); err != nil {
			c.log.Warn("commit failed, offsets will be re-delivered", "err", err)
		}
	}()
}

func (c *KafkaConsumer) Wakeup() {
	select {
	case c.wakeupCh <- struct{}{}:
	default:
	}
}

func (c *KafkaConsumer) Close() error {
	c.closing.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.readers {
		_ = r.Close()
	}
	if c.group != nil {
		return c.group.Close()
	}
	return nil
}
