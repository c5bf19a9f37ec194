// ABOUTME: Periodic announcement broadcaster
// ABOUTME: Owns the send socket and the broadcast ticker, emits EOS on stop
package announcer

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Salaam-Protocol/salaam-go/pkg/protocol"
)

// DefaultInterval is how often the announcement is re-broadcast. Browsers
// expire silent instances, so the interval must stay well inside their
// disappearance window.
const DefaultInterval = 10 * time.Second

// Config holds announcer configuration.
type Config struct {
	// HostName is the announced host name (default os.Hostname).
	HostName string

	// ServiceType identifies the kind of service, e.g. "print".
	ServiceType string

	// Name is the instance name (default "<hostname>-<uuid>").
	Name string

	// Port is the port the announced service listens on.
	Port int

	// Message is the initial free-form status message.
	Message string

	// Interval between broadcasts (default DefaultInterval).
	Interval time.Duration

	// BroadcastAddr overrides the destination (default
	// 255.255.255.255 on the protocol port).
	BroadcastAddr string

	// Logger receives structured diagnostics. Nil disables logging.
	Logger *zerolog.Logger
}

// Announcer periodically broadcasts one service instance's presence.
type Announcer struct {
	log      zerolog.Logger
	interval time.Duration

	mu       sync.Mutex
	config   Config
	message  string
	running  bool
	conn     net.PacketConn
	dst      net.Addr
	cancel   context.CancelFunc

	// Replaceable in tests.
	dial func(broadcastAddr string) (net.PacketConn, net.Addr, error)
}

// New creates an announcer and resolves defaulted identity fields. The
// service type and other fields must not contain the ';' wire separator;
// Encode enforces that on every broadcast, but the service type is checked
// here so misconfiguration fails before any traffic is sent.
func New(config Config) (*Announcer, error) {
	if strings.Contains(config.ServiceType, ";") {
		return nil, fmt.Errorf("service type %q must not contain ';'", config.ServiceType)
	}
	if config.HostName == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolving local host name: %w", err)
		}
		config.HostName = host
	}
	if config.Name == "" {
		config.Name = fmt.Sprintf("%s-%s", config.HostName, uuid.New().String())
	}
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.BroadcastAddr == "" {
		config.BroadcastAddr = fmt.Sprintf("255.255.255.255:%d", protocol.DefaultPort)
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	return &Announcer{
		log:      log,
		interval: config.Interval,
		config:   config,
		message:  config.Message,
		dial: func(broadcastAddr string) (net.PacketConn, net.Addr, error) {
			dst, err := net.ResolveUDPAddr("udp4", broadcastAddr)
			if err != nil {
				return nil, nil, err
			}
			conn, err := net.ListenPacket("udp4", ":0")
			if err != nil {
				return nil, nil, err
			}
			return conn, dst, nil
		},
	}, nil
}

// Start opens the send socket and broadcasts immediately, then on every
// interval. Starting a running announcer is a no-op.
func (a *Announcer) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}

	conn, dst, err := a.dial(a.config.BroadcastAddr)
	if err != nil {
		return fmt.Errorf("opening broadcast socket: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.conn = conn
	a.dst = dst
	a.cancel = cancel
	a.running = true

	go a.announceLoop(ctx)

	a.log.Info().
		Str("service_type", a.config.ServiceType).
		Str("name", a.config.Name).
		Str("broadcast", a.config.BroadcastAddr).
		Msg("announcer started")
	return nil
}

// Stop broadcasts one end-of-service announcement (best effort) and closes
// the socket. Idempotent.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false
	a.cancel()

	a.broadcastLocked(protocol.CodeEndOfService)
	_ = a.conn.Close()
	a.conn = nil

	a.log.Info().Str("name", a.config.Name).Msg("announcer stopped")
}

// SetMessage changes the advertised status message; the next broadcast
// carries it.
func (a *Announcer) SetMessage(message string) {
	a.mu.Lock()
	a.message = message
	a.mu.Unlock()
}

// Message returns the currently advertised status message.
func (a *Announcer) Message() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.message
}

func (a *Announcer) announceLoop(ctx context.Context) {
	a.broadcast("")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.broadcast("")
		case <-ctx.Done():
			return
		}
	}
}

func (a *Announcer) broadcast(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return
	}
	a.broadcastLocked(code)
}

func (a *Announcer) broadcastLocked(code string) {
	datagram, err := protocol.Encode(
		a.config.HostName,
		a.config.ServiceType,
		a.config.Name,
		a.config.Port,
		a.message,
		code,
	)
	if err != nil {
		a.log.Error().Err(err).Msg("cannot encode announcement")
		return
	}

	if _, err := a.conn.WriteTo(datagram, a.dst); err != nil {
		a.log.Warn().Err(err).Msg("broadcast failed")
		return
	}
	a.log.Debug().Str("code", code).Int("bytes", len(datagram)).Msg("announcement sent")
}
