package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/0xmhha/session-keeper/pkg/config"
	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/protocol"
	"github.com/0xmhha/session-keeper/pkg/recovery"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// watchCommand prints cross-tab events until interrupted.
type watchCommand struct {
	opts     globalOptions
	out      io.Writer
	syncOn   bool
	interval time.Duration
}

// runWatchCommand runs the watch command.
func runWatchCommand(opts globalOptions, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	syncEvents := fs.Bool("sync", false, "also print periodic sync requests")
	interval := fs.Duration("interval", 0, "sync interval (e.g., 5s); default from config")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &watchCommand{
		opts:     opts,
		out:      out,
		syncOn:   *syncEvents,
		interval: *interval,
	}
	return cmd.Execute(ctx)
}

// Execute subscribes to every event and blocks until ctx is done.
func (c *watchCommand) Execute(ctx context.Context) error {
	a, err := openApp(ctx, c.opts, c.out, func(cfg *config.Config) {
		enabled := c.syncOn
		cfg.Sync.Enabled = &enabled
		if c.interval > 0 {
			cfg.Sync.Interval = c.interval
		}
	})
	if err != nil {
		return err
	}
	defer a.close()

	// Handlers run on the listener goroutine and the scheduler; serialize output.
	var mu sync.Mutex
	printEvent := func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := a.formatter.FormatEvent(a.out, ev); err != nil {
			a.log.Error("failed to write event", "event", ev.Name(), "error", err)
		}
	}
	for _, name := range events.Names {
		a.mgr.On(name, printEvent)
	}

	if err := a.mgr.Init(); err != nil {
		return err
	}

	a.log.Info("watching for changes from other tabs", "tab_id", a.mgr.TabID())
	<-ctx.Done()
	return nil
}

// recoverCommand validates the saved session against a scripted server.
type recoverCommand struct {
	opts    globalOptions
	out     io.Writer
	verdict string
	delay   time.Duration
	timeout time.Duration
}

// runRecoverCommand runs the recover command.
func runRecoverCommand(opts globalOptions, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	verdict := fs.String("verdict", "valid", "server verdict (valid, invalid, silent)")
	delay := fs.Duration("delay", 0, "delay before the server answers")
	timeout := fs.Duration("timeout", 0, "validation timeout (e.g., 2s); default from config")

	if err := fs.Parse(args); err != nil {
		return err
	}

	switch *verdict {
	case verdictValid, verdictInvalid, verdictSilent:
	default:
		return fmt.Errorf("invalid verdict: %s (must be valid, invalid, or silent)", *verdict)
	}

	cmd := &recoverCommand{
		opts:    opts,
		out:     out,
		verdict: *verdict,
		delay:   *delay,
		timeout: *timeout,
	}
	return cmd.Execute(context.Background())
}

// Execute runs one recovery attempt and prints its outcome.
func (c *recoverCommand) Execute(ctx context.Context) error {
	a, err := openApp(ctx, c.opts, c.out, func(cfg *config.Config) {
		if c.timeout > 0 {
			cfg.Recovery.ValidationTimeout = c.timeout
		}
	})
	if err != nil {
		return err
	}
	defer a.close()

	server := newScriptedServer(c.verdict, c.delay, a.log.Named("server"))
	defer server.wait()

	res := a.mgr.AttemptSessionRecovery(ctx, server, recoveryCallbacks(a.log))
	return a.formatter.FormatRecovery(a.out, res)
}

// recoveryCallbacks logs each restore step.
func recoveryCallbacks(log logger.Logger) recovery.Callbacks {
	return recovery.Callbacks{
		OnSessionRecovered: func(rec *session.Record) {
			log.Info("session recovered", "session_code", rec.SessionCode, "state", rec.State)
		},
		OnSensorReconnected: func(id string) {
			log.Info("sensor reconnected", "sensor", id)
		},
		OnGameStateRestored: func(state json.RawMessage) {
			log.Info("game state restored", "bytes", len(state))
		},
	}
}

// Server verdicts.
const (
	verdictValid   = "valid"
	verdictInvalid = "invalid"
	verdictSilent  = "silent"
)

// scriptedServer answers validation requests with a fixed verdict and
// stands in for the live game object during restore.
type scriptedServer struct {
	verdict string
	delay   time.Duration
	logger  logger.Logger

	mu      sync.Mutex
	nextID  int
	subs    map[int]func(protocol.Inbound)
	pending sync.WaitGroup
}

func newScriptedServer(verdict string, delay time.Duration, log logger.Logger) *scriptedServer {
	return &scriptedServer{
		verdict: verdict,
		delay:   delay,
		logger:  log,
		subs:    make(map[int]func(protocol.Inbound)),
	}
}

// Send implements recovery.Collaborator.Send.
func (s *scriptedServer) Send(_ context.Context, msg protocol.Message) error {
	req, ok := msg.(protocol.ValidateRequest)
	if !ok {
		s.logger.Debug("ignoring message", "type", msg.MessageType())
		return nil
	}
	s.logger.Debug("validation request received", "session_code", req.SessionCode, "verdict", s.verdict)

	if s.verdict == verdictSilent {
		return nil
	}

	in, err := protocol.EncodeInbound(protocol.ValidationResult{
		Type:    protocol.TypeValidationResult,
		IsValid: s.verdict == verdictValid,
	})
	if err != nil {
		return err
	}

	if s.delay <= 0 {
		s.deliver(in)
		return nil
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		time.Sleep(s.delay)
		s.deliver(in)
	}()
	return nil
}

func (s *scriptedServer) deliver(in protocol.Inbound) {
	s.mu.Lock()
	fns := make([]func(protocol.Inbound), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(in)
	}
}

// wait blocks until delayed answers are delivered.
func (s *scriptedServer) wait() {
	s.pending.Wait()
}

// Subscribe implements recovery.Collaborator.Subscribe.
func (s *scriptedServer) Subscribe(fn func(protocol.Inbound)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// SetIdentity implements recovery.Collaborator.SetIdentity.
func (s *scriptedServer) SetIdentity(id session.Identity) {
	s.logger.Debug("identity restored", "session_code", id.SessionCode, "room", id.RoomID)
}

// SetState implements recovery.Collaborator.SetState.
func (s *scriptedServer) SetState(state string) {
	s.logger.Debug("state restored", "state", state)
}

// SetSensorConnected implements recovery.Collaborator.SetSensorConnected.
func (s *scriptedServer) SetSensorConnected(id string, connected bool) {
	s.logger.Debug("sensor restored", "sensor", id, "connected", connected)
}

var _ recovery.Collaborator = (*scriptedServer)(nil)
