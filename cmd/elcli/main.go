package main

/*
 * elcli - interactive console for Etherlink devices
 *
 * Connects to a device over a USB serial port and provides commands to
 * ping it, send raw frames and watch incoming messages.
 *
 * License: MIT License
 */

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/albenik/go-serial/v2/enumerator"
	"github.com/rs/zerolog"

	"github.com/etherlink-io/goetherlink"
)

const unconnectedPrompt = "[none] > "

type console struct {
	cfg   goetherlink.SerialConfig
	log   zerolog.Logger
	shell *ishell.Shell

	transport *goetherlink.SerialTransport
	cancel    context.CancelFunc
}

func main() {
	configPath := flag.String("config", "", "TOML config file")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Str("app", "elcli").Logger()

	cfg, err := loadSerialConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	app := &console{cfg: cfg, log: logger, shell: ishell.New()}
	app.shell.SetPrompt(unconnectedPrompt)
	app.addCommands()

	if args := flag.Args(); len(args) > 0 {
		if err := app.shell.Process(args...); err != nil {
			logger.Fatal().Err(err).Msg("command failed")
		}
		return
	}
	app.shell.Run()
}

func (a *console) addCommands() {
	a.shell.AddCmd(&ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list"},
		Help:    "list available serial ports",
		Func:    a.ports,
	})
	a.shell.AddCmd(&ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[PORT] connect to the device",
		Func:    a.connect,
	})
	a.shell.AddCmd(&ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "close the current connection",
		Func:    a.disconnect,
	})
	a.shell.AddCmd(&ishell.Cmd{
		Name: "ping",
		Help: "send a ping frame",
		Func: a.mustBeConnected(a.ping),
	})
	a.shell.AddCmd(&ishell.Cmd{
		Name: "version",
		Help: "query the device protocol version",
		Func: a.mustBeConnected(a.version),
	})
	a.shell.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "ID [HEX] send a raw frame",
		Func: a.mustBeConnected(a.send),
	})
	a.shell.AddCmd(&ishell.Cmd{
		Name: "stats",
		Help: "show frame counters",
		Func: a.mustBeConnected(a.stats),
	})
	a.shell.AddCmd(&ishell.Cmd{
		Name: "reset",
		Help: "reset the parser state",
		Func: a.mustBeConnected(a.reset),
	})
}

func (a *console) mustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if a.transport == nil {
			c.Err(errors.New("not connected"))
			return
		}
		fn(c)
	}
}

// onMessage handles every valid frame from the device. The payload is only
// valid during the call, so anything printed is formatted here.
func (a *console) onMessage(msgID byte, payload []byte) {
	switch msgID {
	case goetherlink.MsgPong:
		a.log.Info().Msg("pong")
	case goetherlink.MsgVersion:
		v, ok := goetherlink.DecodeVersionPayload(payload)
		if !ok {
			a.log.Warn().Msg("malformed version payload")
			return
		}
		a.log.Info().
			Int("major", int(v.Major)).
			Int("minor", int(v.Minor)).
			Int("build", int(v.Build)).
			Msg("device version")
	case goetherlink.MsgError:
		e, ok := goetherlink.DecodeErrorPayload(payload)
		if !ok {
			a.log.Warn().Msg("malformed error payload")
			return
		}
		a.log.Warn().Uint8("code", e.Code).Msg("device error")
	default:
		a.log.Info().Uint8("id", msgID).Hex("payload", payload).Msg("message")
	}
}

func (a *console) ports(c *ishell.Context) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		c.Err(err)
		return
	}
	if len(ports) == 0 {
		c.Println("no serial ports found")
		return
	}
	for _, p := range ports {
		if p.IsUSB {
			c.Printf("%s  VID=%s PID=%s\n", p.Name, p.VID, p.PID)
		} else {
			c.Println(p.Name)
		}
	}
}

func (a *console) connect(c *ishell.Context) {
	if a.transport != nil {
		c.Err(errors.New("already connected"))
		return
	}
	cfg := a.cfg
	if len(c.Args) > 0 {
		cfg.PortName = c.Args[0]
	}

	tr, err := goetherlink.NewSerialTransport(cfg, a.onMessage, a.log)
	if err != nil {
		c.Err(err)
		return
	}
	if err := tr.Open(); err != nil {
		c.Err(err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.transport, a.cancel = tr, cancel
	go func() {
		if err := tr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("serial loop stopped")
		}
	}()

	name := cfg.PortName
	if name == "" {
		name = fmt.Sprintf("usb:%s:%s", cfg.VendorID, cfg.ProductID)
	}
	a.shell.SetPrompt(fmt.Sprintf("%s > ", name))
}

func (a *console) disconnect(c *ishell.Context) {
	if a.transport == nil {
		return
	}
	a.cancel()
	if err := a.transport.Close(); err != nil {
		c.Err(err)
	}
	a.transport, a.cancel = nil, nil
	a.shell.SetPrompt(unconnectedPrompt)
}

func (a *console) ping(c *ishell.Context) {
	if err := a.transport.Send(goetherlink.MsgPing, nil); err != nil {
		c.Err(err)
	}
}

func (a *console) version(c *ishell.Context) {
	if err := a.transport.Send(goetherlink.MsgVersion, nil); err != nil {
		c.Err(err)
	}
}

func (a *console) send(c *ishell.Context) {
	msgID, payload, err := parseSendArgs(c.Args)
	if err != nil {
		c.Err(err)
		return
	}
	if err := a.transport.Send(msgID, payload); err != nil {
		c.Err(err)
	}
}

func (a *console) stats(c *ishell.Context) {
	s := a.transport.Stats()
	c.Printf("rx: %d  rejected: %d  tx: %d\n", s.RxFrames, s.RxErrors, s.TxFrames)
}

func (a *console) reset(c *ishell.Context) {
	a.transport.Reset()
}

// parseSendArgs parses "send ID [HEX...]" arguments. The id accepts decimal
// or 0x-prefixed hex; the payload is hex digits, optionally space-separated.
func parseSendArgs(args []string) (byte, []byte, error) {
	if len(args) < 1 {
		return 0, nil, errors.New("usage: send ID [HEX]")
	}
	id, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return 0, nil, fmt.Errorf("parse message id: %w", err)
	}
	var payload []byte
	if len(args) > 1 {
		payload, err = hex.DecodeString(strings.Join(args[1:], ""))
		if err != nil {
			return 0, nil, fmt.Errorf("parse payload hex: %w", err)
		}
	}
	return byte(id), payload, nil
}
