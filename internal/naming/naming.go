// Package naming строит имена файлов для сохранённых ответов
package naming

import (
	"fmt"
	"strings"
	"time"

	"ftp_bounce/models"
)

// Stamp возвращает метку времени для сортировки файлов: минута, час, "-", месяц, день, год
// без ведущих нулей, например 3020-12242023.
func Stamp(now time.Time) string {
	return fmt.Sprintf("%d%d-%d%d%d", now.Minute(), now.Hour(), int(now.Month()), now.Day(), now.Year())
}

// Derive возвращает имя файла <метка>_<действие>_<путь с "_" вместо "/">.out
func Derive(action models.Action, remotePath string, now time.Time) string {
	return Stamp(now) + "_" + string(action) + "_" + strings.ReplaceAll(remotePath, "/", "_") + ".out"
}
