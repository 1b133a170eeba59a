// Package campaign проходит словарь: для каждого пути назначает имя файла приёмнику,
// отправляет последовательность команд цели и переходит к следующему пути.
package campaign

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ftp_bounce/config"
	"ftp_bounce/internal/control"
	"ftp_bounce/internal/listener"
	"ftp_bounce/internal/naming"
	"ftp_bounce/models"
)

// Sequencer отправляет команды по управляющему каналу
type Sequencer interface {
	Run(ctx context.Context, addr string, commands []string) ([]byte, error)
}

// Recorder сохраняет исход попытки
type Recorder interface {
	Record(campaign string, a *models.Attempt) error
}

// Campaign один запуск по словарю
type Campaign struct {
	ID     string
	Config config.Config
	Action models.Action
	Paths  []string

	Sequencer Sequencer
	// Journal необязателен
	Journal Recorder
	Now     func() time.Time
	Log     *log.Entry

	lst *listener.Listener
}

// New создаёт кампанию с новым идентификатором и Sequencer по умолчанию
func New(conf config.Config, action models.Action, paths []string) *Campaign {
	id := uuid.New().String()
	entry := log.WithFields(log.Fields{"campaign": id})
	return &Campaign{
		ID:        id,
		Config:    conf,
		Action:    action,
		Paths:     paths,
		Sequencer: control.NewSequencer(conf.ControlTimeout, entry),
		Now:       time.Now,
		Log:       entry,
	}
}

// Listener приёмник данных, доступен после начала Run
func (c *Campaign) Listener() *listener.Listener {
	return c.lst
}

// Run запускает приёмник, проходит все пути по порядку и останавливает приёмник,
// дождавшись обработчиков. Ошибка возвращается только если приёмник не смог занять порт.
func (c *Campaign) Run(ctx context.Context) (models.Summary, error) {
	summary := models.Summary{Campaign: c.ID}
	conf := c.Config

	c.lst = listener.New(listener.Options{
		Dir:         conf.OutputDir,
		ReadTimeout: conf.DataReadTimeout,
		MaxHandlers: conf.MaxHandlers,
		Logger:      c.Log,
	})
	if err := c.lst.Start(conf.BindHost, conf.BouncePort); err != nil {
		return summary, err
	}

	target := conf.Target()
	if target.BouncePort == 0 {
		// порт выбрала система, в PORT уходит фактический
		target.BouncePort = c.lst.Addr().(*net.TCPAddr).Port
	}
	addr := net.JoinHostPort(target.RemoteHost, strconv.Itoa(target.ControlPort))

	for i, path := range c.Paths {
		if ctx.Err() != nil {
			c.Log.WithFields(log.Fields{"remaining": len(c.Paths) - i}).Warn("Campaign cancelled")
			break
		}
		a := c.attempt(ctx, i, path, target, addr)
		summary.Attempts++
		if a.Failed() {
			summary.Failed++
		}
		if c.Journal != nil {
			if err := c.Journal.Record(c.ID, a); err != nil {
				c.Log.WithFields(log.Fields{"err": err}).Error("Journal write failed")
			}
		}
	}

	if err := c.lst.Stop(); err != nil {
		c.Log.WithFields(log.Fields{"err": err}).Error("Stopping data listener failed")
	}
	c.drain(ctx, conf.DataReadTimeout+conf.ControlTimeout)

	stats := c.lst.Stats()
	summary.Received = int(stats.Written)
	summary.Bytes = stats.Bytes
	c.Log.WithFields(log.Fields{
		"attempts": summary.Attempts,
		"failed":   summary.Failed,
		"received": summary.Received,
		"bytes":    summary.Bytes,
	}).Info("Campaign finished")
	return summary, nil
}

// drain ждёт обработчики соединений данных. Медленная передача, которая ещё
// идёт после patience, не обрывается: ожидание продолжается до отмены ctx.
func (c *Campaign) drain(ctx context.Context, patience time.Duration) {
	timed, cancel := context.WithTimeout(ctx, patience)
	err := c.lst.Wait(timed)
	cancel()
	if err == nil {
		return
	}
	c.Log.WithFields(log.Fields{"waited": patience, "accepted": c.lst.Stats().Accepted}).Warn("Still waiting for data handlers")
	if err := c.lst.Wait(ctx); err != nil {
		c.Log.WithFields(log.Fields{"err": err}).Error("Data handlers did not finish")
	}
}

func (c *Campaign) attempt(ctx context.Context, i int, path string, target models.Target, addr string) *models.Attempt {
	a := &models.Attempt{
		Index:   i,
		Path:    path,
		Started: c.Now(),
	}
	a.Filename = naming.Derive(c.Action, path, a.Started)
	entry := c.Log.WithFields(log.Fields{"path": path, "action": c.Action, "file": a.Filename})
	entry.Info("Sending file path")

	// имя назначается до PORT, соединение данных может прийти сразу после него
	tok := c.lst.Arm(a.Filename)

	cmds, err := control.Build(control.Request{
		Action:         c.Action,
		Target:         target,
		User:           c.Config.User,
		Password:       c.Config.Password,
		TraversalDepth: c.Config.TraversalDepth,
		Path:           path,
	})
	if err != nil {
		a.Error = err.Error()
		entry.WithFields(log.Fields{"err": err}).Error("Building commands failed")
		return a
	}
	a.Commands = cmds

	resp, err := c.Sequencer.Run(ctx, addr, cmds)
	if err != nil {
		a.Error = errors.Wrap(err, "control channel").Error()
		entry.WithFields(log.Fields{"err": err}).Error("Attempt failed")
		return a
	}
	a.Response = string(resp)
	entry.WithFields(log.Fields{"response": a.Response}).Debug("Last response")

	if c.Config.Settle > 0 {
		t := time.NewTimer(c.Config.Settle)
		select {
		case <-tok.Done():
		case <-t.C:
			entry.Debug("No data connection within settle time")
		case <-ctx.Done():
		}
		t.Stop()
	}
	a.Received = tok.Received()
	a.Size = int(tok.Size())
	return a
}
