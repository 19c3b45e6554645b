// Package session 维护客户端与 worker 之间的一一绑定。
package session

import (
	"sort"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/identity"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrAlreadyBound 客户端或 worker 已处于会话中
var ErrAlreadyBound = errors.New("session: peer already bound")

// Session 一次训练会话
type Session struct {
	ID           string
	Client       identity.Peer
	Worker       identity.Peer
	EnvName      string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Router 双索引绑定表，非并发安全，由分发循环独占
type Router struct {
	byClient map[identity.Peer]*Session
	byWorker map[identity.Peer]*Session
}

// NewRouter 创建 Router
func NewRouter() *Router {
	return &Router{
		byClient: make(map[identity.Peer]*Session),
		byWorker: make(map[identity.Peer]*Session),
	}
}

// Bind 建立绑定，任一方已绑定时拒绝且不修改状态
func (r *Router) Bind(client, worker identity.Peer, env string, now time.Time) (*Session, error) {
	if _, ok := r.byClient[client]; ok {
		return nil, errors.Wrapf(ErrAlreadyBound, "client %s", client)
	}
	if _, ok := r.byWorker[worker]; ok {
		return nil, errors.Wrapf(ErrAlreadyBound, "worker %s", worker)
	}

	s := &Session{
		ID:           uuid.NewString(),
		Client:       client,
		Worker:       worker,
		EnvName:      env,
		CreatedAt:    now,
		LastActivity: now,
	}
	r.byClient[client] = s
	r.byWorker[worker] = s
	return s, nil
}

// UnbindByClient 按客户端解除绑定
func (r *Router) UnbindByClient(client identity.Peer) (*Session, bool) {
	s, ok := r.byClient[client]
	if !ok {
		return nil, false
	}
	r.remove(s)
	return s, true
}

// UnbindByWorker 按 worker 解除绑定
func (r *Router) UnbindByWorker(worker identity.Peer) (*Session, bool) {
	s, ok := r.byWorker[worker]
	if !ok {
		return nil, false
	}
	r.remove(s)
	return s, true
}

func (r *Router) remove(s *Session) {
	delete(r.byClient, s.Client)
	delete(r.byWorker, s.Worker)
}

// LookupByClient 只读查询
func (r *Router) LookupByClient(client identity.Peer) (*Session, bool) {
	s, ok := r.byClient[client]
	return s, ok
}

// LookupByWorker 只读查询
func (r *Router) LookupByWorker(worker identity.Peer) (*Session, bool) {
	s, ok := r.byWorker[worker]
	return s, ok
}

// Touch 刷新会话活跃时间
func (r *Router) Touch(s *Session, now time.Time) {
	if cur, ok := r.byWorker[s.Worker]; ok && cur == s {
		s.LastActivity = now
	}
}

// Len 活跃会话数
func (r *Router) Len() int {
	return len(r.byClient)
}

// All 按创建时间返回会话副本
func (r *Router) All() []Session {
	out := make([]Session, 0, len(r.byClient))
	for _, s := range r.byClient {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Client.String() < out[j].Client.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
