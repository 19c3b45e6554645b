// Package registry 维护空闲 worker 池。
package registry

import (
	"slices"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/identity"
	"github.com/IntelLabs/networkgym/app/broker/internal/session"
	"github.com/cockroachdb/errors"
)

// DefaultTimeout worker 心跳超时
const DefaultTimeout = 60 * time.Second

// ErrAlreadyBusy worker 在会话中再次宣告空闲，视为重启
var ErrAlreadyBusy = errors.New("registry: worker announced while bound")

// Worker 空闲 worker 记录
type Worker struct {
	Address       identity.Peer
	Capabilities  []string
	LastHeartbeat time.Time
	RegisteredAt  time.Time

	seq uint64 // 注册序号，决定匹配顺序
}

// Supports 是否能提供指定环境
func (w *Worker) Supports(name string) bool {
	return slices.Contains(w.Capabilities, name)
}

// Unbinder 由会话路由实现
type Unbinder interface {
	UnbindByWorker(worker identity.Peer) (*session.Session, bool)
}

// Registry 按注册顺序保存空闲 worker，非并发安全，由分发循环独占
type Registry struct {
	timeout  time.Duration
	sessions Unbinder
	order    []*Worker
	index    map[identity.Peer]*Worker
	nextSeq  uint64
}

// New 创建 Registry
func New(timeout time.Duration, sessions Unbinder) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		timeout:  timeout,
		sessions: sessions,
		index:    make(map[identity.Peer]*Worker),
	}
}

// Timeout 心跳超时
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

func (r *Registry) stale(w *Worker, now time.Time) bool {
	return !now.Before(w.LastHeartbeat.Add(r.timeout))
}

// Announce 新增或刷新空闲记录，刷新时保持原注册位置
//
// 若该地址仍绑定在会话中，先解除该会话并连同 ErrAlreadyBusy 一起返回，
// 空闲记录照常接受。
func (r *Registry) Announce(addr identity.Peer, caps []string, now time.Time) (*session.Session, error) {
	var (
		superseded *session.Session
		err        error
	)
	if r.sessions != nil {
		if s, ok := r.sessions.UnbindByWorker(addr); ok {
			superseded = s
			err = errors.Wrapf(ErrAlreadyBusy, "worker %s, session %s", addr, s.ID)
		}
	}

	caps = slices.Clone(caps)
	if w, ok := r.index[addr]; ok {
		w.Capabilities = caps
		w.LastHeartbeat = now
		return superseded, err
	}

	w := &Worker{
		Address:       addr,
		Capabilities:  caps,
		LastHeartbeat: now,
		RegisteredAt:  now,
		seq:           r.nextSeq,
	}
	r.nextSeq++
	r.order = append(r.order, w)
	r.index[addr] = w
	return superseded, err
}

// EvictStale 移除所有心跳超时的记录
func (r *Registry) EvictStale(now time.Time) []Worker {
	var evicted []Worker
	kept := r.order[:0]
	for _, w := range r.order {
		if r.stale(w, now) {
			evicted = append(evicted, *w)
			delete(r.index, w.Address)
			continue
		}
		kept = append(kept, w)
	}
	clear(r.order[len(kept):])
	r.order = kept
	return evicted
}

// TakeMatching 取出第一个支持 name 且未超时的记录；未命中时不修改状态
func (r *Registry) TakeMatching(name string, now time.Time) (Worker, bool) {
	for i, w := range r.order {
		if r.stale(w, now) || !w.Supports(name) {
			continue
		}
		r.removeAt(i)
		return *w, true
	}
	return Worker{}, false
}

// Remove 移除指定记录
func (r *Registry) Remove(addr identity.Peer) (Worker, bool) {
	w, ok := r.index[addr]
	if !ok {
		return Worker{}, false
	}
	r.removeAt(slices.Index(r.order, w))
	return *w, true
}

func (r *Registry) removeAt(i int) {
	w := r.order[i]
	delete(r.index, w.Address)
	r.order = slices.Delete(r.order, i, i+1)
}

// Restore 将 TakeMatching 取出的记录放回原注册位置；地址已重新宣告时不做处理
func (r *Registry) Restore(w Worker) bool {
	if _, ok := r.index[w.Address]; ok {
		return false
	}
	cp := w
	cp.Capabilities = slices.Clone(w.Capabilities)
	i, _ := slices.BinarySearchFunc(r.order, cp.seq, func(e *Worker, seq uint64) int {
		switch {
		case e.seq < seq:
			return -1
		case e.seq > seq:
			return 1
		}
		return 0
	})
	r.order = slices.Insert(r.order, i, &cp)
	r.index[cp.Address] = &cp
	return true
}

// Contains 是否为空闲 worker
func (r *Registry) Contains(addr identity.Peer) bool {
	_, ok := r.index[addr]
	return ok
}

// Len 空闲 worker 数
func (r *Registry) Len() int {
	return len(r.order)
}

// Idle 按注册顺序返回空闲记录副本
func (r *Registry) Idle() []Worker {
	out := make([]Worker, 0, len(r.order))
	for _, w := range r.order {
		cp := *w
		cp.Capabilities = slices.Clone(w.Capabilities)
		out = append(out, cp)
	}
	return out
}
