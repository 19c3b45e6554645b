package dispatcher

import (
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/account"
	"github.com/IntelLabs/networkgym/app/broker/internal/identity"
	"github.com/IntelLabs/networkgym/app/broker/internal/protocol"
	"github.com/IntelLabs/networkgym/app/broker/internal/session"
	"github.com/IntelLabs/networkgym/pkg/network/router"
	"github.com/cockroachdb/errors"
)

// 客户端消息：[payload]
func (d *Dispatcher) handleClient(m router.Message) {
	if len(m.Parts) != 1 {
		d.logger.Warn("ignore client message with wrong size", "client", m.Identity, "parts", len(m.Parts))
		return
	}
	payload := m.Parts[0]

	peer, err := identity.ParseClient(m.Identity)
	if err != nil {
		d.logger.Warn("ignore message from malformed client identity", "client", m.Identity, "error", err)
		return
	}

	if err := d.gate.Authorize(peer); err != nil {
		d.reject(peer, err)
		return
	}

	hdr, err := protocol.Decode(payload)
	if err != nil {
		d.recorder.Rejected("protocol")
		d.logger.Warn("undecodable client message", "client", peer.String(), "error", err)
		d.replyError(peer, errors.Wrap(ErrProtocolViolation, err.Error()).Error())
		return
	}
	d.recorder.Message(EndpointClient, hdr.Type)

	switch hdr.Type {
	case protocol.TypeStart:
		d.clientStart(peer, hdr, payload)
	case protocol.TypeAction:
		d.clientAction(peer, payload)
	case protocol.TypeError:
		d.clientError(peer, payload)
	default:
		s, ok := d.sessions.LookupByClient(peer)
		if !ok {
			d.logger.Warn("drop client message without session", "client", peer.String(), "type", hdr.Type)
			return
		}
		d.relayToWorker(s, payload)
	}
}

func (d *Dispatcher) reject(peer identity.Peer, err error) {
	reason := "unknown_account"
	if errors.Is(err, ErrQuotaExceeded) {
		reason = "quota"
	}
	d.recorder.Rejected(reason)
	d.logger.Warn("client rejected", "client", peer.String(), "error", err)
	d.replyError(peer, account.RejectMessage(err))
}

func (d *Dispatcher) clientStart(peer identity.Peer, hdr protocol.Header, payload []byte) {
	if s, ok := d.sessions.LookupByClient(peer); ok {
		// 先转发给 worker 让其结束仿真，再拆除会话
		d.sendWorker(s.Worker, s.Client, payload)
		d.sessions.UnbindByClient(peer)
		d.recorder.Rejected("protocol")
		d.endSession(s, ResultViolation, errors.Wrap(ErrProtocolViolation, "env-start while bound"))
		d.replyError(peer, duplicateStartMessage)
		return
	}

	env := d.resolver.Resolve(peer.Account, hdr.Env)
	now := d.now()

	begin := time.Now()
	w, ok := d.registry.TakeMatching(env, now)
	d.recorder.MatchDuration(time.Since(begin))
	if !ok {
		d.recorder.Rejected("no_worker")
		d.logger.Info("no available worker",
			"client", peer.String(),
			"env", env,
			"error", errors.Wrapf(ErrNoWorkerAvailable, "env %s", env),
		)
		d.sendClient(peer, protocol.NoAvailableWorkerPayload(env, d.idleWorkers()))
		return
	}

	s, err := d.sessions.Bind(peer, w.Address, env, now)
	if err != nil {
		// 空闲 worker 与未绑定客户端不会冲突，出现即为内部状态错误
		d.logger.Error("bind failed, worker returned to idle pool", "client", peer.String(), "worker", w.Address.String(), "error", err)
		d.registry.Restore(w)
		d.replyError(peer, errors.Wrap(ErrProtocolViolation, err.Error()).Error())
		return
	}

	d.recorder.Session(ResultStarted)
	d.logger.Info("session started",
		"session", s.ID,
		"client", peer.String(),
		"worker", w.Address.String(),
		"env", env,
	)
	d.relayToWorker(s, payload)
}

func (d *Dispatcher) clientAction(peer identity.Peer, payload []byte) {
	s, ok := d.sessions.LookupByClient(peer)
	if !ok {
		d.recorder.Rejected("protocol")
		d.logger.Warn("env-action without session", "client", peer.String())
		d.replyError(peer, noSessionMessage)
		return
	}
	d.relayToWorker(s, payload)
}

func (d *Dispatcher) clientError(peer identity.Peer, payload []byte) {
	s, ok := d.sessions.UnbindByClient(peer)
	if !ok {
		d.logger.Warn("env-error from client without session", "client", peer.String())
		return
	}
	d.endSession(s, ResultClientError, errors.Wrapf(ErrPeerFailure, "client %s reported error", peer))
	if d.sendWorker(s.Worker, s.Client, payload) {
		d.recorder.Relayed(DirectionToWorker)
	}
}

// worker 消息：[client identity, payload]
func (d *Dispatcher) handleWorker(m router.Message) {
	if len(m.Parts) < 2 {
		d.logger.Warn("ignore worker message with wrong size", "worker", m.Identity, "parts", len(m.Parts))
		return
	}
	claimed, payload := string(m.Parts[0]), m.Parts[1]

	peer, err := identity.ParseWorker(m.Identity)
	if err != nil {
		d.logger.Warn("ignore message from malformed worker identity", "worker", m.Identity, "error", err)
		return
	}

	hdr, err := protocol.Decode(payload)
	if err != nil {
		d.logger.Warn("undecodable worker message", "worker", peer.String(), "error", err)
		return
	}
	d.recorder.Message(EndpointWorker, hdr.Type)

	switch hdr.Type {
	case protocol.TypeHello:
		d.workerHello(peer, hdr)
	case protocol.TypeMeasurement:
		d.workerMeasurement(peer, claimed, payload)
	case protocol.TypeEnd:
		d.workerEnd(peer)
	case protocol.TypeError:
		d.workerError(peer, hdr, payload)
	default:
		s, ok := d.sessions.LookupByWorker(peer)
		if !ok {
			d.logger.Warn("drop worker message without session", "worker", peer.String(), "type", hdr.Type)
			return
		}
		d.relayToClient(s, payload)
	}
}

func (d *Dispatcher) workerHello(peer identity.Peer, hdr protocol.Header) {
	caps := d.resolver.ResolveList(peer.Account, hdr.EnvList)
	superseded, err := d.registry.Announce(peer, caps, d.now())
	if superseded != nil {
		d.endSession(superseded, ResultWorkerRestart, err)
		d.replyError(superseded.Client, workerRestartMessage)
	}
	d.logger.Debug("worker announced", "worker", peer.String(), "envs", caps)
}

func (d *Dispatcher) workerMeasurement(peer identity.Peer, claimed string, payload []byte) {
	s, ok := d.sessions.LookupByWorker(peer)
	if !ok {
		d.logger.Warn("drop env-measurement without session", "worker", peer.String(), "client", claimed)
		return
	}
	if claimed != s.Client.String() {
		d.logger.Debug("measurement addressed to another client, routed to bound client",
			"worker", peer.String(), "claimed", claimed, "client", s.Client.String())
	}
	d.sessions.Touch(s, d.now())
	d.relayToClient(s, payload)
}

func (d *Dispatcher) workerEnd(peer identity.Peer) {
	if _, ok := d.registry.Remove(peer); ok {
		d.logger.Warn("env-end from an idle worker", "worker", peer.String())
	}
	if s, ok := d.sessions.UnbindByWorker(peer); ok {
		d.endSession(s, ResultCompleted, nil)
	}
}

func (d *Dispatcher) workerError(peer identity.Peer, hdr protocol.Header, payload []byte) {
	if _, ok := d.registry.Remove(peer); ok {
		d.logger.Warn("env-error from an idle worker", "worker", peer.String(), "error_msg", hdr.ErrorMsg)
	}
	s, ok := d.sessions.UnbindByWorker(peer)
	if !ok {
		return
	}
	d.endSession(s, ResultWorkerError, errors.Wrapf(ErrPeerFailure, "worker %s: %s", peer, hdr.ErrorMsg))
	d.relayToClient(s, payload)
}

func (d *Dispatcher) relayToClient(s *session.Session, payload []byte) {
	if d.sendClient(s.Client, payload) {
		d.recorder.Relayed(DirectionToClient)
	}
}

func (d *Dispatcher) idleWorkers() []protocol.IdleWorker {
	idle := d.registry.Idle()
	out := make([]protocol.IdleWorker, 0, len(idle))
	for _, w := range idle {
		out = append(out, protocol.IdleWorker{Worker: w.Address.String(), EnvList: w.Capabilities})
	}
	return out
}
