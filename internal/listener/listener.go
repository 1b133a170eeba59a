// Package listener принимает соединения данных, которые цель открывает после PORT,
// и сохраняет полученные байты в файл, назначенный текущей попытке.
package listener

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// UnarmedFilename используется, если соединение пришло до первого Arm
const UnarmedFilename = "unknown"

const chunkSize = 8000

var (
	ErrAlreadyStarted = errors.New("listener already started")
	ErrNotStarted     = errors.New("listener not started")
)

// Token связывает ожидаемое имя файла с поколением слота.
// Done закрывается, когда первое соединение, принятое под этим токеном, завершилось.
type Token struct {
	Name string
	Gen  uint64

	done     chan struct{}
	once     sync.Once
	received atomic.Bool
	size     atomic.Int64
}

func newToken(name string, gen uint64) *Token {
	return &Token{Name: name, Gen: gen, done: make(chan struct{})}
}

// Done канал, закрываемый по завершении соединения данных для токена
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Received сообщает, было ли записано первое соединение под этим токеном
func (t *Token) Received() bool {
	return t.received.Load()
}

// Size число байт, записанных первым соединением под этим токеном
func (t *Token) Size() int64 {
	return t.size.Load()
}

// finish учитывает только первое завершившееся соединение под токеном,
// поздние соединения с тем же именем не меняют Received и Size.
func (t *Token) finish(written bool, n int) {
	t.once.Do(func() {
		if written {
			t.received.Store(true)
			t.size.Store(int64(n))
		}
		close(t.done)
	})
}

// Stats счётчики приёмника
type Stats struct {
	Accepted int64
	Written  int64
	Bytes    int64
}

// Options параметры приёмника
type Options struct {
	// Dir каталог для файлов, по умолчанию текущий
	Dir         string
	ReadTimeout time.Duration
	MaxHandlers int
	Logger      *log.Entry
}

// Listener принимает соединения данных
type Listener struct {
	opts Options
	log  *log.Entry
	sem  *semaphore.Weighted

	mu   sync.Mutex
	slot *Token
	gen  uint64

	ln         net.Listener
	acceptDone chan struct{}
	cancel     context.CancelFunc
	handlers   sync.WaitGroup

	accepted atomic.Int64
	written  atomic.Int64
	bytes    atomic.Int64
}

// New создаёт приёмник, не занимая порт
func New(opts Options) *Listener {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.MaxHandlers <= 0 {
		opts.MaxHandlers = 16
	}
	entry := opts.Logger
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	return &Listener{
		opts: opts,
		log:  entry,
		sem:  semaphore.NewWeighted(int64(opts.MaxHandlers)),
		slot: newToken(UnarmedFilename, 0),
	}
}

// Start занимает порт и запускает цикл приёма.
// Ошибка привязки фатальна для кампании.
func (l *Listener) Start(bindHost string, bindPort int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return ErrAlreadyStarted
	}
	addr := net.JoinHostPort(bindHost, strconv.Itoa(bindPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "binding data listener on %s", addr)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.ln = ln
	l.acceptDone = make(chan struct{})
	l.cancel = cancel
	l.log.WithFields(log.Fields{"addr": ln.Addr().String()}).Info("Data listener started")
	go l.acceptLoop(ctx, ln, l.acceptDone)
	return nil
}

// Addr адрес, на котором слушает приёмник
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Arm атомарно назначает имя файла для следующего входящего соединения
func (l *Listener) Arm(name string) *Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.slot = newToken(name, l.gen)
	return l.slot
}

// Expected текущее значение слота
func (l *Listener) Expected() *Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot
}

// Stop закрывает сокет и ждёт выхода цикла приёма.
// Обработчики не прерываются, дождаться их можно через Wait.
func (l *Listener) Stop() error {
	l.mu.Lock()
	ln, done, cancel := l.ln, l.acceptDone, l.cancel
	l.mu.Unlock()
	if ln == nil {
		return ErrNotStarted
	}
	// будит цикл, ожидающий свободного обработчика
	cancel()
	err := ln.Close()
	<-done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "closing data listener")
	}
	return nil
}

// Wait ждёт завершения всех обработчиков или отмены контекста
func (l *Listener) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats возвращает счётчики
func (l *Listener) Stats() Stats {
	return Stats{
		Accepted: l.accepted.Load(),
		Written:  l.written.Load(),
		Bytes:    l.bytes.Load(),
	}
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener, done chan struct{}) {
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.log.Debug("Data listener stopped")
				return
			}
			l.log.WithFields(log.Fields{"err": err}).Error("Accept failed")
			time.Sleep(5 * time.Millisecond)
			continue
		}
		// имя фиксируется в момент приёма, поздний Arm его не меняет
		tok := l.Expected()
		l.accepted.Add(1)
		if err := l.sem.Acquire(ctx, 1); err != nil {
			l.log.WithFields(log.Fields{"remote": conn.RemoteAddr().String()}).Warn("Data listener stopped with all handlers busy, dropping connection")
			conn.Close()
			return
		}
		l.handlers.Add(1)
		go l.handle(conn, tok)
	}
}

func (l *Listener) handle(conn net.Conn, tok *Token) {
	defer l.handlers.Done()
	defer l.sem.Release(1)
	defer conn.Close()

	entry := l.log.WithFields(log.Fields{
		"remote": conn.RemoteAddr().String(),
		"file":   tok.Name,
		"gen":    tok.Gen,
	})
	entry.Info("Data connection accepted")

	data, err := receive(conn, l.opts.ReadTimeout)
	switch {
	case err != nil && len(data) == 0:
		entry.WithFields(log.Fields{"err": err}).Error("Error while receiving data from the target")
		tok.finish(false, 0)
		return
	case err != nil:
		entry.WithFields(log.Fields{"err": err, "size": len(data)}).Error("Data connection failed, saving partial data")
	case len(data) == 0:
		entry.Error("No data obtained")
	}
	entry.WithFields(log.Fields{"payload": previewPayload(data)}).Trace("Data received")

	path := filepath.Join(l.opts.Dir, tok.Name)
	if werr := os.WriteFile(path, data, 0o644); werr != nil {
		entry.WithFields(log.Fields{"err": werr}).Error("Saving data failed")
		tok.finish(false, 0)
		return
	}
	l.written.Add(1)
	l.bytes.Add(int64(len(data)))
	entry.WithFields(log.Fields{"path": path, "size": len(data)}).Info("Saved data")
	tok.finish(true, len(data))
}

// receive читает до закрытия соединения пиром или ошибки.
// Таймаут отсчитывается заново для каждого чтения.
func receive(conn net.Conn, timeout time.Duration) ([]byte, error) {
	var data []byte
	buf := make([]byte, chunkSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return data, err
		}
		n, err := conn.Read(buf)
		data = append(data, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return data, nil
			}
			return data, err
		}
	}
}

func previewPayload(data []byte) string {
	const max = 256
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
