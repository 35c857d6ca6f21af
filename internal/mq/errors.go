package mq

import "errors"

var (
	// ErrNoChannel — канал ещё не открыт или соединение переподключается.
	ErrNoChannel = errors.New("no channel available")

	// ErrUnknownMessage — тип сообщения не ожидается получателем.
	ErrUnknownMessage = errors.New("unknown message type")
)
