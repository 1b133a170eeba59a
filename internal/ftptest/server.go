// Package ftptest содержит FTP сервер для тестов, который выполняет LIST и RETR
// через активное соединение данных на адрес из PORT.
package ftptest

import (
	"bufio"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Server тестовый FTP сервер на loopback
type Server struct {
	// Files содержимое по абсолютному пути после нормализации "../"
	Files map[string][]byte
	// Stall число первых сессий, которым сервер ничего не отвечает
	Stall int
	// DataDelay откладывает соединение данных, ответ на команду уходит сразу
	DataDelay time.Duration

	ln       net.Listener
	mu       sync.Mutex
	sessions [][]string
	stalled  []net.Conn
	wg       sync.WaitGroup
}

// NewServer запускает сервер с файлами files на случайном порту
func NewServer(files map[string][]byte) (*Server, error) {
	s := &Server{Files: files}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start запускает сервер, поля настраиваются до вызова
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return errors.Wrap(err, "listening")
	}
	s.ln = ln
	s.wg.Add(1)
	go s.serve()
	return nil
}

// Addr адрес управляющего канала
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Port порт управляющего канала
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Sessions команды, полученные в каждой сессии, в порядке подключения
func (s *Server) Sessions() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.sessions))
	for i, cmds := range s.sessions {
		out[i] = append([]string(nil), cmds...)
	}
	return out
}

// Close останавливает сервер и ждёт завершения сессий
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for _, c := range s.stalled {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		id := len(s.sessions)
		s.sessions = append(s.sessions, nil)
		stall := id < s.Stall
		if stall {
			s.stalled = append(s.stalled, conn)
		}
		s.mu.Unlock()
		if stall {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.session(id, conn)
		}()
	}
}

func (s *Server) record(id int, cmd string) {
	s.mu.Lock()
	s.sessions[id] = append(s.sessions[id], cmd)
	s.mu.Unlock()
}

func (s *Server) session(id int, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))
	reply := func(format string, args ...interface{}) {
		fmt.Fprintf(conn, format+"\r\n", args...)
	}
	reply("220 ftptest ready")

	var dataAddr string
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		s.record(id, line)
		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "USER":
			reply("331 Please specify the password.")
		case "PASS":
			reply("230 Login successful.")
		case "TYPE":
			reply("200 Switching to Binary mode.")
		case "PORT":
			addr, err := ParsePort(arg)
			if err != nil {
				reply("501 Illegal PORT command.")
				continue
			}
			dataAddr = addr
			reply("200 PORT command successful.")
		case "LIST", "RETR":
			data, ok := s.Files[path.Clean("/"+arg)]
			if !ok {
				reply("550 Failed to open file.")
				continue
			}
			if dataAddr == "" {
				reply("425 Use PORT first.")
				continue
			}
			if s.DataDelay > 0 {
				// ответ уходит раньше соединения данных
				reply("150 Here comes the data.")
				s.wg.Add(1)
				go func(addr string) {
					defer s.wg.Done()
					time.Sleep(s.DataDelay)
					s.transfer(addr, data)
				}(dataAddr)
				continue
			}
			if err := s.transfer(dataAddr, data); err != nil {
				log.WithFields(log.Fields{"err": err}).Debug("ftptest data connection failed")
				reply("425 Failed to establish connection.")
				continue
			}
			reply("150 Here comes the data.\r\n226 Transfer complete.")
		case "QUIT":
			reply("221 Goodbye.")
			return
		default:
			reply("502 Command not implemented.")
		}
	}
}

func (s *Server) transfer(addr string, data []byte) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(data)
	return err
}

// ParsePort разбирает аргумент PORT h1,h2,h3,h4,p1,p2 в адрес host:port
func ParsePort(arg string) (string, error) {
	parts := strings.Split(strings.TrimSpace(arg), ",")
	if len(parts) != 6 {
		return "", errors.Errorf("malformed PORT argument %q", arg)
	}
	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return "", errors.Errorf("malformed PORT argument %q", arg)
		}
		nums[i] = n
	}
	host := fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	return net.JoinHostPort(host, strconv.Itoa(nums[4]<<8|nums[5])), nil
}
