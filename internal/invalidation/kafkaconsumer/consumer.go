// Package kafkaconsumer applies invalidation events from a Kafka topic to
// the clip result cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/raster-clip/internal/cache"
	"github.com/mohammed-shakir/raster-clip/internal/core/observability"
	"github.com/mohammed-shakir/raster-clip/internal/invalidation"
	"github.com/mohammed-shakir/raster-clip/internal/mapper"
)

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  cache.Interface
	mapper mapper.Interface
	ver    *versionDedupe

	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfg Config, logger *slog.Logger, c cache.Interface, m mapper.Interface) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger.With("component", "kafka_consumer"),
		cache:  c,
		mapper: m,
		ver:    newVersionDedupe(cfg.DedupeSize),
		assign: map[int32]struct{}{},
	}
}

// Start joins the consumer group and consumes in the background until ctx
// is cancelled or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil || c.mapper == nil {
		return errors.New("kafkaconsumer: missing dependencies (cache/mapper)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	h := c.handler()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				c.logger.Error("kafka consumer group close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
				c.logger.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range group.Errors() {
			c.logger.Error("kafka group error", "err", err)
		}
	}()

	c.logger.Info("kafka invalidation consumer started",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)
	return nil
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("kafka invalidation consumer stopped")
}

// Readiness reports whether the consumer currently owns partitions.
func (c *Consumer) Readiness() (ready bool, partitions []int32) {
	if !c.assigned.Load() {
		return false, nil
	}
	c.assignMu.RLock()
	defer c.assignMu.RUnlock()
	for p := range c.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (c *Consumer) handler() *groupHandler {
	return &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			defer c.assignMu.Unlock()
			c.assign = map[int32]struct{}{}
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					c.assign[p] = struct{}{}
				}
			}
			c.assigned.Store(true)
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			defer c.assignMu.Unlock()
			c.assigned.Store(false)
			c.assign = map[int32]struct{}{}
		},
		process: c.ProcessOne,
	}
}

// ProcessOne applies one event. Malformed events are logged and skipped;
// only cache failures are returned, which leaves the message unmarked.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	log := c.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncInvalidationEvent("unknown", "invalid")
		log.Warn("undecodable invalidation event skipped", "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.IncInvalidationEvent(opLabel(ev.Op), "invalid")
		log.Warn("invalid invalidation event skipped", "err", err)
		return nil
	}

	key, version := ev.DedupeKey(), ev.TS.UnixNano()
	if !c.ver.fresh(key, version) {
		observability.IncInvalidationEvent(ev.Op, "duplicate")
		log.Debug("stale or repeated event skipped", "target", ev.Target(), "ts", ev.TS)
		return nil
	}

	sel := cache.Selector{Layer: ev.Layer, Raster: ev.Raster}
	if ev.BBox != nil {
		cells, err := c.mapper.CellsForBBox(ev.BBox.Geom(), c.cfg.Res)
		if err != nil {
			observability.IncInvalidationEvent(ev.Op, "invalid")
			log.Warn("event bbox could not be mapped; skipped", "err", err)
			return nil
		}
		sel.Cells = cells
	}

	n, err := c.cache.Invalidate(ctx, sel)
	observability.AddInvalidatedKeys(n)
	if err != nil {
		observability.IncInvalidationEvent(ev.Op, "error")
		log.Error("cache invalidation failed", "target", ev.Target(), "err", err)
		return fmt.Errorf("invalidate %s: %w", ev.Target(), err)
	}
	c.ver.record(key, version)
	observability.IncInvalidationEvent(ev.Op, "applied")
	log.Info("invalidated cached clips",
		"op", ev.Op, "target", ev.Target(), "cells", len(sel.Cells), "keys", n)
	return nil
}

func opLabel(op string) string {
	switch op {
	case "insert", "update", "delete":
		return op
	default:
		return "unknown"
	}
}
