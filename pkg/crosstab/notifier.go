package crosstab

import (
	"encoding/json"
	"sync"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/protocol"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// Notifier sends local changes to other tabs and turns their messages
// into events on the local bus.
//
// It implements session.Broadcaster.
type Notifier struct {
	channel Channel
	bus     *events.Bus
	self    TabIdentity
	logger  logger.Logger

	mu     sync.Mutex
	cancel func()
}

var _ session.Broadcaster = (*Notifier)(nil)

// NewNotifier creates a notifier over ch emitting on bus.
func NewNotifier(ch Channel, bus *events.Bus, self TabIdentity, log logger.Logger) *Notifier {
	return &Notifier{
		channel: ch,
		bus:     bus,
		self:    self,
		logger:  log,
	}
}

// NotifyOtherTabs implements session.Broadcaster.
//
// Failures are logged; a notification is best effort.
func (n *Notifier) NotifyOtherTabs(messageType protocol.TabMessageType, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		n.logger.Warn("failed to encode tab message", "type", string(messageType), "error", err)
		return
	}

	if err := n.channel.Broadcast(Message{Type: messageType, Data: raw, FromTab: n.self.ID()}); err != nil {
		n.logger.Warn("failed to notify other tabs", "type", string(messageType), "error", err)
		return
	}
	n.logger.Debug("notified other tabs", "type", string(messageType))
}

// Start begins listening. Calling Start on a started notifier is a no-op.
func (n *Notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel != nil {
		return nil
	}

	cancel, err := n.channel.Listen(n.dispatch)
	if err != nil {
		return err
	}
	n.cancel = cancel

	n.logger.Info("cross-tab listener started", "tab_id", n.self.ID())
	return nil
}

// Stop ends listening. Safe to call multiple times.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel == nil {
		return
	}
	n.cancel()
	n.cancel = nil

	n.logger.Info("cross-tab listener stopped")
}

// Listening reports whether Start has been called without Stop.
func (n *Notifier) Listening() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cancel != nil
}

// dispatch maps one inbound message to an event.
func (n *Notifier) dispatch(msg Message) {
	if msg.FromTab == n.self.ID() {
		return
	}

	at := clock.FromMillis(msg.Timestamp)

	var ev events.Event
	switch msg.Type {
	case protocol.TabSessionSaved:
		var rec session.Record
		if !n.decode(msg, &rec) {
			return
		}
		ev = events.SessionUpdatedByOtherTab{FromTab: msg.FromTab, At: at, Session: &rec}

	case protocol.TabSessionEnded:
		var notice session.EndNotice
		if !n.decode(msg, &notice) {
			return
		}
		ev = events.SessionEndedByOtherTab{FromTab: msg.FromTab, At: at, Notice: notice}

	case protocol.TabGameStateChanged:
		var notice session.GameStateNotice
		if !n.decode(msg, &notice) {
			return
		}
		ev = events.GameStateChangedByOtherTab{FromTab: msg.FromTab, At: at, Notice: notice}

	default:
		n.logger.Debug("ignoring unknown tab message", "type", string(msg.Type), "from_tab", msg.FromTab)
		return
	}

	n.logger.Debug("tab message received", "type", string(msg.Type), "from_tab", msg.FromTab)
	n.bus.Emit(ev)
}

func (n *Notifier) decode(msg Message, dst interface{}) bool {
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		n.logger.Warn("dropping undecodable tab message",
			"type", string(msg.Type),
			"from_tab", msg.FromTab,
			"error", err)
		return false
	}
	return true
}
