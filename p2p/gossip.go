// Package p2p simulates block propagation. Blocks are announced after a
// fixed network latency on an in-process publish/subscribe bus, so local
// consumers (the WebSocket block stream, tests) observe what peers would.
package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/zkfocil/zkfocil/core/types"
	"github.com/zkfocil/zkfocil/log"
)

// Gossip errors.
var (
	ErrGossipClosed = errors.New("gossip: closed")
	ErrGossipNilMsg = errors.New("gossip: nil block")
)

// Defaults for GossipConfig.
const (
	DefaultDelay      = 500 * time.Millisecond
	DefaultBlockTopic = "blocks"
	defaultBuffer     = 64
)

// Metadata keys set on every block message.
const (
	metaBlockID = "block_id"
	metaCreator = "creator"
)

// GossipConfig configures the simulated network.
type GossipConfig struct {
	// Delay is the simulated propagation latency per block. Zero disables
	// the wait.
	Delay time.Duration
	Topic string
}

// DefaultGossipConfig returns a 500ms latency on the "blocks" topic.
func DefaultGossipConfig() GossipConfig {
	return GossipConfig{Delay: DefaultDelay, Topic: DefaultBlockTopic}
}

// Gossip is a fixed-latency broadcaster backed by a watermill go channel.
type Gossip struct {
	config GossipConfig
	pubsub *gochannel.GoChannel
	log    *log.Logger

	mu     sync.RWMutex
	closed bool
}

// NewGossip creates a broadcaster.
func NewGossip(config GossipConfig, logger *log.Logger) *Gossip {
	if config.Topic == "" {
		config.Topic = DefaultBlockTopic
	}
	if config.Delay < 0 {
		config.Delay = 0
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.Module("p2p")
	return &Gossip{
		config: config,
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: defaultBuffer,
		}, NewLoggerAdapter(logger)),
		log: logger,
	}
}

// Broadcast waits for the configured latency and then announces block to
// every subscriber. It returns ctx.Err() if ctx ends during the wait, in
// which case nothing is published.
func (g *Gossip) Broadcast(ctx context.Context, block *types.Block) error {
	if block == nil {
		return ErrGossipNilMsg
	}
	if g.config.Delay > 0 {
		timer := time.NewTimer(g.config.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	payload, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("gossip: encode block %d: %w", block.ID, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaBlockID, strconv.FormatUint(block.ID, 10))
	msg.Metadata.Set(metaCreator, block.Creator.Hex())

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrGossipClosed
	}
	if err := g.pubsub.Publish(g.config.Topic, msg); err != nil {
		return fmt.Errorf("gossip: publish block %d: %w", block.ID, err)
	}
	g.log.Debug("Block gossiped", "id", block.ID, "hash", block.Hash, "msg_uuid", msg.UUID)
	return nil
}

// Subscribe returns a channel of gossiped blocks. The channel is closed
// when ctx ends or the gossip is closed.
func (g *Gossip) Subscribe(ctx context.Context) (<-chan *types.Block, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, ErrGossipClosed
	}
	msgs, err := g.pubsub.Subscribe(ctx, g.config.Topic)
	if err != nil {
		return nil, err
	}
	out := make(chan *types.Block, defaultBuffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			var block types.Block
			if err := json.Unmarshal(msg.Payload, &block); err != nil {
				g.log.Warn("Dropping undecodable block message", "msg_uuid", msg.UUID, "err", err)
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- &block:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down and closes all subscriber channels.
func (g *Gossip) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	return g.pubsub.Close()
}
