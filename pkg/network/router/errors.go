package router

import "github.com/cockroachdb/errors"

var (
	// 配置错误
	ErrInvalidConfig = errors.New("router: invalid config")

	// 握手错误
	ErrHandshakeFailed  = errors.New("router: handshake failed")
	ErrIdentityMismatch = errors.New("router: identity does not belong to user")
	ErrNotAuthenticated = errors.New("router: connection not authenticated")

	// 发送错误
	ErrPeerNotFound  = errors.New("router: peer not connected")
	ErrMessageTooBig = errors.New("router: message too big")
	ErrEmptyMessage  = errors.New("router: empty message")

	// 服务器错误
	ErrServerClosed         = errors.New("router: server closed")
	ErrServerAlreadyStarted = errors.New("router: server already started")
	ErrServerNotStarted     = errors.New("router: server not started")

	// 编解码错误
	ErrInvalidFrame    = errors.New("router: invalid frame")
	ErrIncompleteFrame = errors.New("router: incomplete frame")
)
