package goetherlink

/*
 * Etherlink Protocol Library in Go
 *
 * Serial transport: opens a USB serial port by name or VID/PID, pumps
 * received bytes into the frame parser and transmits encoded frames.
 *
 * License: MIT License
 */

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/albenik/go-serial/v2"
	"github.com/albenik/go-serial/v2/enumerator"
	"github.com/rs/zerolog"
)

const (
	DefaultBaudRate = 115200

	serialReadTimeout = 100 // milliseconds
	serialReadBufSize = 1024
	maxReconnects     = 1000
	reconnectDelay    = 2 * time.Second
)

var (
	ErrNoPortsFound    = errors.New("goetherlink: no serial ports found")
	ErrNoMatchingPort  = errors.New("goetherlink: no matching USB port found")
	ErrTransportClosed = errors.New("goetherlink: serial transport not open")
)

// serialPort is the subset of *serial.Port the transport drives.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// SerialConfig selects and configures the serial port.
type SerialConfig struct {
	PortName  string // explicit device path; wins over VID/PID matching
	VendorID  string // USB vendor id, e.g. "0403"
	ProductID string // USB product id, e.g. "6015"
	BaudRate  int    // defaults to DefaultBaudRate
}

// SerialTransport drives a Link over a serial port. Each transport owns its
// link and its port, so several independent device links can coexist in one
// process.
type SerialTransport struct {
	cfg  SerialConfig
	link *Link
	log  zerolog.Logger

	mu sync.Mutex // serializes link access between rx pump and senders

	portMu sync.Mutex
	port   serialPort
}

// NewSerialTransport creates a serial transport and its protocol link. The
// link's byte sink is wired to the port writer; onMessage receives every
// valid frame from the device.
func NewSerialTransport(cfg SerialConfig, onMessage MessageHandler, log zerolog.Logger) (*SerialTransport, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	t := &SerialTransport{
		cfg: cfg,
		log: log.With().Str("transport", "serial").Logger(),
	}
	link, err := NewLink(onMessage, t.writeBytes)
	if err != nil {
		return nil, err
	}
	t.link = link
	return t, nil
}

// matchPort picks the configured port name, or the first USB port matching
// the configured VID/PID.
func matchPort(cfg SerialConfig, ports []*enumerator.PortDetails) (string, error) {
	if cfg.PortName != "" {
		return cfg.PortName, nil
	}
	if len(ports) == 0 {
		return "", ErrNoPortsFound
	}
	for _, p := range ports {
		if p.IsUSB && p.VID == cfg.VendorID && p.PID == cfg.ProductID {
			return p.Name, nil
		}
	}
	return "", ErrNoMatchingPort
}

// Open discovers and opens the serial port with 8N1 framing and a read
// timeout, so the rx pump can observe context cancellation.
func (t *SerialTransport) Open() error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("enumerate serial ports: %w", err)
	}
	name, err := matchPort(t.cfg, ports)
	if err != nil {
		return err
	}
	port, err := serial.Open(name,
		serial.WithBaudrate(t.cfg.BaudRate),
		serial.WithDataBits(8),
		serial.WithParity(serial.NoParity),
		serial.WithStopBits(serial.OneStopBit),
		serial.WithReadTimeout(serialReadTimeout),
	)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	t.portMu.Lock()
	t.port = port
	t.portMu.Unlock()
	t.log.Info().Str("port", name).Int("baud", t.cfg.BaudRate).Msg("serial port opened")
	return nil
}

// Close closes the serial port if open.
func (t *SerialTransport) Close() error {
	t.portMu.Lock()
	defer t.portMu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// Run pumps received bytes into the parser until ctx ends. On a read failure
// it reattempts the connection with bounded retries and resets the link, so
// a stale half-parsed frame cannot absorb bytes from the new session.
func (t *SerialTransport) Run(ctx context.Context) error {
	buf := make([]byte, serialReadBufSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.portMu.Lock()
		port := t.port
		t.portMu.Unlock()
		if port == nil {
			return ErrTransportClosed
		}

		n, err := port.Read(buf)
		if err != nil {
			t.log.Warn().Err(err).Msg("serial read failed")
			if err := t.reconnect(ctx); err != nil {
				return err
			}
			continue
		}
		if n > 0 {
			t.mu.Lock()
			t.link.ProcessBytes(buf[:n])
			t.mu.Unlock()
		}
	}
}

func (t *SerialTransport) reconnect(ctx context.Context) error {
	t.Close()
	for i := 1; i <= maxReconnects; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
		if err := t.Open(); err != nil {
			t.log.Warn().Err(err).Int("attempt", i).Msg("reconnect failed")
			continue
		}
		t.Reset()
		t.log.Info().Msg("reconnected")
		return nil
	}
	return errors.New("goetherlink: serial reconnect attempts exhausted")
}

// Send encodes and transmits one frame over the serial link.
func (t *SerialTransport) Send(msgID byte, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link.Send(msgID, payload)
}

// Stats returns a snapshot of the link's frame counters.
func (t *SerialTransport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link.Stats()
}

// Reset discards any in-progress parse on the link.
func (t *SerialTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.link.Reset()
}

// Link exposes the owned protocol link. Direct use bypasses the transport's
// locking; prefer Send, Stats and Reset unless the caller drives everything
// from one goroutine.
func (t *SerialTransport) Link() *Link {
	return t.link
}

// writeBytes is the link's byte sink. Write failures are logged, never
// surfaced through the encoder.
func (t *SerialTransport) writeBytes(data []byte) {
	t.portMu.Lock()
	port := t.port
	t.portMu.Unlock()
	if port == nil {
		t.log.Warn().Msg("send dropped: port not open")
		return
	}
	if _, err := port.Write(data); err != nil {
		t.log.Warn().Err(err).Msg("serial write failed")
	}
}
