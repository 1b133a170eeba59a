// Package wordlist загружает список путей для перебора
package wordlist

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Default пути Linux, используемые без словаря
var Default = []string{
	"/etc/passwd",
	"/var/log/apache2/access.log",
	"/etc/ssh/sshd_config",
	"/etc/init.d/uftp",
	"/etc/lighttpd/conf-enabled/10-rewrite.conf",
	"/etc/apache/conf/httpd.conf",
	"/etc/apache2/sites-enabled/000-default",
	"/etc/apache2/sites-enabled/000-default.conf",
	"/etc/apache2/sites-enabled/default",
	"/etc/apache2/sites-enabled/default.conf",
	"/etc/ssh/sshd_config",
	"/etc/ssh/ssh_config",
}

// Read читает по одному пути на строку, пропуская пустые строки и комментарии "#".
// Порядок и повторы сохраняются.
func Read(r io.Reader) ([]string, error) {
	var paths []string
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, "reading wordlist")
	}
	return paths, nil
}

// Load читает словарь из файла, пустой путь возвращает копию Default
func Load(path string) ([]string, error) {
	if path == "" {
		return append([]string(nil), Default...), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening wordlist %s", path)
	}
	defer f.Close()
	paths, err := Read(f)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("wordlist %s is empty", path)
	}
	return paths, nil
}
