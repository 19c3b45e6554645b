package dispatcher

import (
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/protocol"
)

// 端点与转发方向标签
const (
	EndpointClient = "client"
	EndpointWorker = "worker"

	DirectionToWorker = "client_to_worker"
	DirectionToClient = "worker_to_client"
)

// 会话结束原因
const (
	ResultStarted       = "started"
	ResultCompleted     = "completed"
	ResultWorkerError   = "worker_error"
	ResultClientError   = "client_error"
	ResultWorkerRestart = "worker_restart"
	ResultViolation     = "violation"
	ResultPeerFailure   = "peer_failure"
	ResultStale         = "stale"
)

// Recorder 分发事件统计，由 metrics 包实现
type Recorder interface {
	Message(endpoint string, t protocol.Type)
	Relayed(direction string)
	Rejected(reason string)
	Session(result string)
	Evicted(n int)
	MatchDuration(d time.Duration)
	State(idle, sessions int)
}

type nopRecorder struct{}

func (nopRecorder) Message(string, protocol.Type) {}
func (nopRecorder) Relayed(string)                {}
func (nopRecorder) Rejected(string)               {}
func (nopRecorder) Session(string)                {}
func (nopRecorder) Evicted(int)                   {}
func (nopRecorder) MatchDuration(time.Duration)   {}
func (nopRecorder) State(int, int)                {}
