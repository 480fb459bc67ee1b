package statesync

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// AckFunc receives the server's asynchronous response to a command.
type AckFunc func(protocol.Ack)

// SendFunc writes an envelope to the server.
type SendFunc func(protocol.Envelope) error

// Optimistic is a local mutation applied the moment a command is sent and
// reverted if the command fails. At most one is registered per command type.
type Optimistic struct {
	Apply  func()
	Revert func()
}

type pendingCommand struct {
	cmd    protocol.CommandName
	onAck  AckFunc
	revert func()
	timer  clockwork.Timer
}

// Dispatcher sends locally-initiated commands over the channel and routes
// acknowledgements back to callers by correlation id. Commands are
// fire-and-forget: there is no queueing and no automatic retry; failure is
// surfaced through the ack and re-prompting is the caller's concern.
type Dispatcher struct {
	clock clockwork.Clock
	send  SendFunc

	mu         sync.Mutex
	pending    map[string]*pendingCommand
	optimistic map[protocol.CommandName]Optimistic
	closed     bool
}

// NewDispatcher creates a dispatcher writing through send.
func NewDispatcher(clock clockwork.Clock, send SendFunc) *Dispatcher {
	return &Dispatcher{
		clock:      clock,
		send:       send,
		pending:    make(map[string]*pendingCommand),
		optimistic: make(map[protocol.CommandName]Optimistic),
	}
}

// RegisterOptimistic installs the apply/revert pair for a command type.
func (d *Dispatcher) RegisterOptimistic(cmd protocol.CommandName, opt Optimistic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.optimistic[cmd] = opt
}

// Send emits a command with an acknowledgement callback. onAck may be nil
// for commands the server never acks (pause/resume); the optimistic
// mutation, if registered, is still applied.
func (d *Dispatcher) Send(cmd protocol.CommandName, args interface{}, onAck AckFunc) error {
	return d.sendWithTimeout(cmd, args, onAck, 0)
}

// SendWithTimeout behaves like Send but fails the command locally if no ack
// arrives within the window. Used by the periodic challenge-loading path.
// The synthetic failure runs the revert and the callback exactly once; a
// late real ack is ignored.
func (d *Dispatcher) SendWithTimeout(cmd protocol.CommandName, args interface{}, onAck AckFunc, timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return d.sendWithTimeout(cmd, args, onAck, timeout)
}

func (d *Dispatcher) sendWithTimeout(cmd protocol.CommandName, args interface{}, onAck AckFunc, timeout time.Duration) error {
	var rawArgs json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal args for %s: %w", cmd, err)
		}
		rawArgs = data
	}

	id := uuid.New().String()
	env, err := protocol.CommandEnvelope(protocol.Command{ID: id, Cmd: cmd, Args: rawArgs})
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher closed")
	}

	var revert func()
	if opt, ok := d.optimistic[cmd]; ok {
		if opt.Apply != nil {
			opt.Apply()
		}
		revert = opt.Revert
	}

	tracked := onAck != nil || revert != nil
	var p *pendingCommand
	if tracked {
		p = &pendingCommand{cmd: cmd, onAck: onAck, revert: revert}
		d.pending[id] = p
		if timeout > 0 {
			p.timer = d.clock.AfterFunc(timeout, func() {
				d.resolve(id, protocol.Ack{ID: id, Success: false, Error: "command timed out"})
			})
		}
	}
	d.mu.Unlock()

	if err := d.send(env); err != nil {
		// The command never left; fail it immediately.
		if tracked {
			d.resolve(id, protocol.Ack{ID: id, Success: false, Error: err.Error()})
		}
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	log.Debug().Str("command_id", id).Str("command", string(cmd)).Msg("command sent")
	return nil
}

// HandleAck routes a server acknowledgement to the waiting command. Acks for
// unknown or already-resolved ids are dropped.
func (d *Dispatcher) HandleAck(ack protocol.Ack) {
	d.resolve(ack.ID, ack)
}

// resolve completes a pending command exactly once.
func (d *Dispatcher) resolve(id string, ack protocol.Ack) {
	d.mu.Lock()
	p, ok := d.pending[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, id)
	d.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	if !ack.Success && p.revert != nil {
		p.revert()
	}
	if !ack.Success {
		log.Warn().
			Str("command_id", id).
			Str("command", string(p.cmd)).
			Str("error", ack.Error).
			Msg("command failed")
	}
	if p.onAck != nil {
		p.onAck(ack)
	}
}

// Close cancels every pending ack timer and fails outstanding commands so
// callers are not left waiting after teardown.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	remaining := d.pending
	d.pending = make(map[string]*pendingCommand)
	d.mu.Unlock()

	for id, p := range remaining {
		if p.timer != nil {
			p.timer.Stop()
		}
		if p.revert != nil {
			p.revert()
		}
		if p.onAck != nil {
			p.onAck(protocol.Ack{ID: id, Success: false, Error: "dispatcher closed"})
		}
	}
}
