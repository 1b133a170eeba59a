// Package control реализует минимальный управляющий канал FTP:
// вход, PORT на адрес приёмника и одна команда LIST или RETR.
package control

import (
	"bytes"
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const responseSize = 1000

// ErrNoCommands возвращается при пустом списке команд
var ErrNoCommands = errors.New("no commands to send")

// Sequencer отправляет последовательность команд по новому соединению на каждый вызов
type Sequencer struct {
	// Timeout ограничивает подключение и каждое чтение или запись
	Timeout time.Duration
	Logger  *log.Entry
}

// NewSequencer создаёт Sequencer, timeout 0 означает 10 секунд
func NewSequencer(timeout time.Duration, logger *log.Entry) *Sequencer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Sequencer{Timeout: timeout, Logger: logger}
}

// Run подключается к addr, отбрасывает приветствие, отправляет команды по одной,
// читая один ответ после каждой, и возвращает последний ответ.
// Соединение закрывается в любом случае.
func (s *Sequencer) Run(ctx context.Context, addr string, commands []string) ([]byte, error) {
	if len(commands) == 0 {
		return nil, ErrNoCommands
	}
	d := net.Dialer{Timeout: s.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", addr)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c := &ctrlConn{conn: conn, timeout: s.Timeout, buf: make([]byte, responseSize)}

	banner, err := c.readResponse()
	if err != nil {
		return nil, errors.Wrap(err, "reading banner")
	}
	s.Logger.WithFields(log.Fields{"banner": string(bytes.TrimSpace(banner))}).Info("Banner received")

	var resp []byte
	for _, cmd := range commands {
		s.Logger.WithFields(log.Fields{"command": cmd}).Info("Running command")
		if err := c.writeCommand(cmd); err != nil {
			return nil, errors.Wrapf(err, "sending %q", verbOf(cmd))
		}
		resp, err = c.readResponse()
		if err != nil {
			return nil, errors.Wrapf(err, "reading response to %q", verbOf(cmd))
		}
		s.Logger.WithFields(log.Fields{"response": string(bytes.TrimSpace(resp))}).Debug("Response received")
	}
	s.Logger.Debug("Closing control connection")
	return bytes.TrimSpace(resp), nil
}

type ctrlConn struct {
	conn    net.Conn
	timeout time.Duration
	buf     []byte
}

// readResponse читает один кусок ответа, без разбора кодов и многострочных ответов
func (c *ctrlConn) readResponse() ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), c.buf[:n]...), nil
}

func (c *ctrlConn) writeCommand(cmd string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(cmd + "\r\n"))
	return err
}

// verbOf скрывает аргументы команды в ошибках, пароль туда не попадает
func verbOf(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		return cmd[:i]
	}
	return cmd
}
