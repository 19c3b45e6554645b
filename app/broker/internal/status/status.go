// Package status 将分发器状态汇总为状态表，镜像到 Redis 并上报到 etcd 元数据。
package status

import (
	"sort"
	"strings"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/dispatcher"
)

// 状态
const (
	StateIdle = "idle"
	StateBusy = "busy"
)

// Row 状态表中的一行
type Row struct {
	Worker   string   `json:"worker"`
	State    string   `json:"state"`
	Client   string   `json:"client,omitempty"`
	Envs     []string `json:"envs"`
	Session  string   `json:"session,omitempty"`
	LastSeen float64  `json:"last_seen_seconds"` // 空闲为距上次 env-hello，忙碌为距上次活动
}

// Document 写入 Redis 的状态文档
type Document struct {
	Taken          time.Time `json:"taken"`
	WorkerTimeout  float64   `json:"worker_timeout_seconds"`
	IdleWorkers    int       `json:"idle_workers"`
	ActiveSessions int       `json:"active_sessions"`
	Rows           []Row     `json:"rows"`
}

// Build 从快照生成状态文档，行按 worker 排序
func Build(s dispatcher.Snapshot) Document {
	doc := Document{
		Taken:          s.Taken,
		WorkerTimeout:  s.Timeout.Seconds(),
		IdleWorkers:    len(s.Idle),
		ActiveSessions: len(s.Sessions),
		Rows:           make([]Row, 0, len(s.Idle)+len(s.Sessions)),
	}

	for _, w := range s.Idle {
		envs := append([]string{}, w.Capabilities...)
		doc.Rows = append(doc.Rows, Row{
			Worker:   w.Address.String(),
			State:    StateIdle,
			Envs:     envs,
			LastSeen: s.Taken.Sub(w.LastHeartbeat).Seconds(),
		})
	}
	for _, sess := range s.Sessions {
		doc.Rows = append(doc.Rows, Row{
			Worker:   sess.Worker.String(),
			State:    StateBusy,
			Client:   sess.Client.String(),
			Envs:     []string{sess.EnvName},
			Session:  sess.ID,
			LastSeen: s.Taken.Sub(sess.LastActivity).Seconds(),
		})
	}

	sort.Slice(doc.Rows, func(i, j int) bool {
		return strings.Compare(doc.Rows[i].Worker, doc.Rows[j].Worker) < 0
	})
	return doc
}
