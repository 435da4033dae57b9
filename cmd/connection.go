// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/crema/internal/logging"
	"github.com/Thermoquad/crema/pkg/crema"
	"github.com/Thermoquad/crema/pkg/session"
	"github.com/Thermoquad/crema/pkg/simdevice"
)

// PasswordEnvVar holds the bridge password
const PasswordEnvVar = "CREMA_PASSWORD"

// serialPollTimeout bounds a single serial Read so the channel can enforce
// its own reply deadline.
const serialPollTimeout = 50 * time.Millisecond

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection carries raw frames in binary WebSocket messages. A
// bridge may split or coalesce frames, so reads are buffered.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port in 8N1 mode
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(serialPollTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens a simulated, WebSocket or serial connection, in
// that order of preference, from the merged configuration.
func OpenConnection() (Connection, string, error) {
	if simulate {
		dev := simdevice.New(simdevice.WithLogger(logging.Named("simdevice")))
		return dev, "Simulated controller", nil
	}

	if cfg.Bridge.URL != "" {
		password := ""
		if cfg.Bridge.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(cfg.Bridge.URL, cfg.Bridge.Username, password, cfg.Bridge.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		logging.LogConnection("websocket", cfg.Bridge.URL, "connected")
		return conn, fmt.Sprintf("WebSocket: %s", cfg.Bridge.URL), nil
	}

	if cfg.Serial.Port != "" {
		conn, err := OpenSerialConnection(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return nil, "", err
		}
		logging.LogConnection("serial", cfg.Serial.Port, "opened")
		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
	}

	return nil, "", errors.New("either --port, --url or --simulate must be specified (or set CREMA_SERIAL_PORT)")
}

// link is an open connection with the channel and session built on it
type link struct {
	conn     Connection
	info     string
	channel  *crema.Channel
	session  *session.Session
	stats    *crema.Statistics
	recorder *crema.Recorder
	capture  *os.File
}

// openLink opens the configured connection and wraps it in a session.
// Extra observers see every dispatch after statistics and capture.
func openLink(observers ...crema.Observer) (*link, error) {
	conn, info, err := OpenConnection()
	if err != nil {
		return nil, err
	}

	l := &link{conn: conn, info: info, stats: crema.NewStatistics()}
	opts := []crema.ChannelOption{
		crema.WithReadTimeout(cfg.Serial.ReadTimeout),
		crema.WithLogger(logging.Named("channel")),
		crema.WithObserver(l.stats.Observe),
	}

	if capturePath != "" {
		f, err := os.OpenFile(capturePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to open capture file: %w", err)
		}
		l.capture = f
		l.recorder = crema.NewRecorder(f)
		opts = append(opts, crema.WithObserver(l.recorder.Observe))
	}
	for _, o := range observers {
		opts = append(opts, crema.WithObserver(o))
	}
	l.channel = crema.NewChannel(conn, opts...)

	stop, _ := cfg.StopEncoding()
	l.session = session.New(l.channel,
		session.WithPollInterval(cfg.Session.PollInterval),
		session.WithPumpRefresh(cfg.Session.PumpRefresh),
		session.WithBrewGrace(cfg.Session.BrewGrace),
		session.WithStopEncoding(stop),
		session.WithLogger(logging.Named("session")),
	)
	return l, nil
}

// Close closes the capture file and the connection
func (l *link) Close() error {
	var errs []error
	if l.capture != nil {
		if err := l.recorder.Err(); err != nil {
			errs = append(errs, err)
		}
		if err := l.capture.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close capture file: %w", err))
		}
	}
	if err := l.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	logging.Debug("link closed", zap.String("connection", l.info))
	return errors.Join(errs...)
}
