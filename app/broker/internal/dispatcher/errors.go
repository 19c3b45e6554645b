package dispatcher

import (
	"github.com/IntelLabs/networkgym/app/broker/internal/account"
	"github.com/cockroachdb/errors"
)

var (
	ErrUnknownAccount = account.ErrUnknownAccount
	ErrQuotaExceeded  = account.ErrQuotaExceeded

	// ErrProtocolViolation 消息在当前状态下不合法
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrNoWorkerAvailable 没有匹配的空闲 worker
	ErrNoWorkerAvailable = errors.New("no worker available")
	// ErrPeerFailure 会话一方报告错误或不可达
	ErrPeerFailure = errors.New("peer failure")
	// ErrStaleWorker worker 心跳超时
	ErrStaleWorker = errors.New("stale worker")
)

// 回复给对端的错误文本
const (
	duplicateStartMessage = "NetworkGym Client - Worker Mapping Exits (Client was force quited, e.g., ctrl+c!). Restart the client."
	noSessionMessage      = "algorithm client to network gym env worker mapping removed."
	workerRestartMessage  = "Worker Restarted, Try Again."
	workerLostMessage     = "Worker connection lost, Try Again."
	workerTimeoutMessage  = "Worker timed out, Try Again."
)
