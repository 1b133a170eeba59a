package models

import (
	"time"

	"github.com/pkg/errors"
)

// ErrUnknownAction возвращается для действия, отличного от list и download
var ErrUnknownAction = errors.New("unknown action, expected list or download")

// Action определяет команду FTP, выполняемую для каждого пути
type Action string

const (
	ActionList     Action = "list"
	ActionDownload Action = "download"
)

// ParseAction разбирает действие из аргумента командной строки
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionList, ActionDownload:
		return Action(s), nil
	}
	return "", errors.Wrapf(ErrUnknownAction, "action %q", s)
}

// Verb возвращает команду FTP для действия
func (a Action) Verb() string {
	if a == ActionDownload {
		return "RETR"
	}
	return "LIST"
}

// Target описывает цель и адрес для bounce, неизменен в течение запуска
type Target struct {
	RemoteHost  string `json:"remote_host" yaml:"remote_host"`
	ControlPort int    `json:"control_port" yaml:"control_port"`
	LocalHost   string `json:"local_host" yaml:"local_host"`
	BouncePort  int    `json:"bounce_port" yaml:"bounce_port"`
}

// Attempt связывает одну запись словаря с результатом
type Attempt struct {
	Index    int       `json:"index"`
	Path     string    `json:"path"`
	Filename string    `json:"filename"`
	Commands []string  `json:"commands"`
	Response string    `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
	Received bool      `json:"received"`
	Size     int       `json:"size,omitempty"`
	Started  time.Time `json:"started"`
}

// Failed сообщает, провалился ли обмен по управляющему каналу
func (a *Attempt) Failed() bool {
	return a.Error != ""
}

// Summary итог кампании
type Summary struct {
	Campaign string `json:"campaign"`
	Attempts int    `json:"attempts"`
	Failed   int    `json:"failed"`
	Received int    `json:"received"`
	Bytes    int64  `json:"bytes"`
}
