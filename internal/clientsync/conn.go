package clientsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/realtime"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// DefaultBackoff is the fixed delay between reconnect attempts.
const DefaultBackoff = 3 * time.Second

var ErrAlreadyStarted = errors.New("connection manager already started")

type ConnConfig struct {
	// URL is the ws:// or wss:// address of the village channel.
	URL     string
	Token   string
	Village string
	Backoff time.Duration
	Dialer  *websocket.Dialer
}

// ConnManager keeps one channel connection to a village alive. It moves
// Disconnected -> Connecting -> Connected and back to Disconnected on loss,
// then waits Backoff before dialing again. Every successful connect sends
// join_village and runs the OnConnect hook, since the channel carries no
// replay of events missed while down.
type ConnManager struct {
	cfg   ConnConfig
	clock clock.Clock
	log   *zap.Logger

	onUpdate  func(reservation.Reservation)
	onConnect func(ctx context.Context)
	onState   func(State)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func NewConnManager(cfg ConnConfig, clk clock.Clock, log *zap.Logger) *ConnManager {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &ConnManager{cfg: cfg, clock: clk, log: log}
}

// The hooks must be set before Start.
func (m *ConnManager) OnUpdate(fn func(reservation.Reservation)) { m.onUpdate = fn }

func (m *ConnManager) OnConnect(fn func(ctx context.Context)) { m.onConnect = fn }

func (m *ConnManager) OnStateChange(fn func(State)) { m.onState = fn }

func (m *ConnManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the connect loop. It can be called again after Stop.
func (m *ConnManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	return nil
}

// Stop closes the connection, cancels a pending backoff and waits for the
// loop to exit.
func (m *ConnManager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *ConnManager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if changed && m.onState != nil {
		m.onState(s)
	}
}

func (m *ConnManager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.setState(Disconnected)

	for {
		m.setState(Connecting)
		err := m.session(ctx)
		m.setState(Disconnected)
		if ctx.Err() != nil {
			return
		}
		m.log.Warn("village channel lost, reconnecting",
			zap.String("village", m.cfg.Village),
			zap.Duration("backoff", m.cfg.Backoff),
			zap.Error(err))
		if !m.wait(ctx, m.cfg.Backoff) {
			return
		}
	}
}

func (m *ConnManager) wait(ctx context.Context, d time.Duration) bool {
	fired := make(chan struct{})
	t := m.clock.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return true
	case <-ctx.Done():
		t.Stop()
		return false
	}
}

// session dials, joins and reads until the connection drops.
func (m *ConnManager) session(ctx context.Context) error {
	header := http.Header{}
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}
	conn, _, err := m.cfg.Dialer.DialContext(ctx, m.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrTransient, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(realtime.Inbound{Type: realtime.TypeJoinVillage, Village: m.cfg.Village}); err != nil {
		return fmt.Errorf("%w: join: %v", ErrTransient, err)
	}
	m.setState(Connected)
	m.log.Info("village channel connected", zap.String("village", m.cfg.Village))

	if m.onConnect != nil {
		m.onConnect(ctx)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: read: %v", ErrTransient, err)
		}
		var out realtime.Outbound
		if err := json.Unmarshal(data, &out); err != nil {
			m.log.Debug("ignoring malformed frame")
			continue
		}
		if out.Type != realtime.TypeReservationUpdate || out.Reservation == nil {
			continue
		}
		if m.onUpdate != nil {
			m.onUpdate(*out.Reservation)
		}
	}
}
