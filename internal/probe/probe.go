// Package probe проверяет, что цель принимает учётные данные, до начала кампании
package probe

import (
	"context"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Login подключается к addr, выполняет вход и закрывает соединение
func Login(ctx context.Context, addr, user, password string, timeout time.Duration) error {
	entry := log.WithFields(log.Fields{"addr": addr, "user": user})
	entry.Info("Probing target login")

	client, err := ftp.Dial(addr,
		ftp.DialWithTimeout(timeout),
		ftp.DialWithContext(ctx),
	)
	if err != nil {
		return errors.Wrapf(err, "connecting to FTP server %s", addr)
	}
	defer func() {
		if err := client.Quit(); err != nil {
			entry.WithFields(log.Fields{"err": err}).Debug("Error closing probe connection")
		}
	}()

	if err := client.Login(user, password); err != nil {
		return errors.Wrapf(err, "authentication failed for user %s", user)
	}
	entry.Info("Target accepted login")
	return nil
}
