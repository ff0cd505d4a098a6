// Package crosstab lets tabs of one origin notify each other.
//
// A message is written as JSON to the shared tabCommunication key and
// removed shortly after. Every other context watching the substrate sees
// the write as a change event and decodes the message; the writer never
// sees its own write. The removal keeps the key from growing stale and
// makes an identical follow-up message a fresh change.
//
// Example usage:
//
//	ch := crosstab.NewStorageChannel(adapter, tab, sched, crosstab.ChannelConfig{}, log)
//	n := crosstab.NewNotifier(ch, bus, tab, log)
//	if err := n.Start(); err != nil {
//	    return err
//	}
//	defer n.Stop()
//
//	n.NotifyOtherTabs(protocol.TabSessionEnded, notice)
package crosstab

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/protocol"
	"github.com/0xmhha/session-keeper/pkg/scheduler"
	"github.com/0xmhha/session-keeper/pkg/storage"
)

// ErrChannelClosed is returned by a closed channel.
var ErrChannelClosed = errors.New("channel closed")

// DefaultClearDelay is how long a message stays under the shared key.
const DefaultClearDelay = 100 * time.Millisecond

// Message is one cross-tab notification.
type Message struct {
	Type      protocol.TabMessageType `json:"type"`
	Data      json.RawMessage         `json:"data"`
	Timestamp int64                   `json:"timestamp"`
	FromTab   string                  `json:"fromTab"`
}

// Channel carries messages between the contexts of one origin.
type Channel interface {
	// Broadcast delivers msg to every other context.
	Broadcast(msg Message) error

	// Listen registers fn for messages from other contexts.
	Listen(fn func(Message)) (cancel func(), err error)

	// Close stops every listener and pending clear.
	Close() error
}

// TabIdentity names the local tab.
type TabIdentity interface {
	ID() string
}

// ChannelConfig contains StorageChannel configuration.
type ChannelConfig struct {
	// ClearDelay is how long a message stays stored.
	// Default: 100ms.
	ClearDelay time.Duration

	// Clock stamps outgoing messages. Default: clock.Real.
	Clock clock.Clock
}

// StorageChannel is a Channel over the shared storage substrate.
//
// Thread-safety: all methods are safe for concurrent use.
type StorageChannel struct {
	adapter *storage.Adapter
	self    TabIdentity
	sched   *scheduler.Scheduler
	config  ChannelConfig
	logger  logger.Logger

	mu        sync.Mutex
	closed    bool
	clearTask scheduler.Task
	cancels   []func()
}

// NewStorageChannel creates a channel writing through adapter.
//
// Parameters:
//   - adapter: Shared storage
//   - self: Local tab identity, used to stamp and filter messages
//   - sched: Owner of the clear timer; nil clears synchronously
//   - cfg: Channel configuration
//   - log: Logger instance
func NewStorageChannel(adapter *storage.Adapter, self TabIdentity, sched *scheduler.Scheduler, cfg ChannelConfig, log logger.Logger) *StorageChannel {
	if cfg.ClearDelay <= 0 {
		cfg.ClearDelay = DefaultClearDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	return &StorageChannel{
		adapter: adapter,
		self:    self,
		sched:   sched,
		config:  cfg,
		logger:  log,
	}
}

// Broadcast implements Channel.Broadcast.
func (c *StorageChannel) Broadcast(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	if msg.FromTab == "" {
		msg.FromTab = c.self.ID()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = clock.Millis(c.config.Clock.Now())
	}

	if err := c.adapter.SetJSON(protocol.KeyTabCommunication, msg); err != nil {
		return fmt.Errorf("broadcast %s: %w", msg.Type, err)
	}

	c.scheduleClear()
	return nil
}

// scheduleClear replaces the pending clear. Caller must hold c.mu.
func (c *StorageChannel) scheduleClear() {
	if c.clearTask != nil {
		c.clearTask.Cancel()
		c.clearTask = nil
	}

	if c.sched == nil {
		c.adapter.Remove(protocol.KeyTabCommunication)
		return
	}

	task, err := c.sched.After("crosstab-clear", c.config.ClearDelay, func() {
		c.adapter.Remove(protocol.KeyTabCommunication)
	})
	if err != nil {
		c.logger.Debug("channel clear not scheduled", "error", err)
		c.adapter.Remove(protocol.KeyTabCommunication)
		return
	}
	c.clearTask = task
}

// Listen implements Channel.Listen.
func (c *StorageChannel) Listen(fn func(Message)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrChannelClosed
	}

	self := c.self.ID()
	cancel, err := c.adapter.Watch(func(change storage.Change) {
		if change.Key != protocol.KeyTabCommunication || change.Removed() || change.NewValue == "" {
			return
		}

		var msg Message
		if err := json.Unmarshal([]byte(change.NewValue), &msg); err != nil {
			c.logger.Warn("dropping malformed tab message", "error", err)
			return
		}
		if msg.FromTab == self {
			return
		}
		fn(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	var once sync.Once
	stop := func() { once.Do(cancel) }
	c.cancels = append(c.cancels, stop)
	return stop, nil
}

// Close implements Channel.Close.
func (c *StorageChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.clearTask != nil {
		c.clearTask.Cancel()
		c.clearTask = nil
	}
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
	return nil
}
