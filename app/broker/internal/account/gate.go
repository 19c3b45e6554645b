package account

import (
	"github.com/IntelLabs/networkgym/app/broker/internal/identity"
	"github.com/cockroachdb/errors"
)

const (
	unknownAccountMessage = "Unkown user account"
	quotaExceededMessage  = "Please reduce --client_id, e.g., --client_id=0. We are limiting the number of instances launched per client. Please contact us to add more instances."
)

// Gate 按账户配额授权请求，无副作用
type Gate struct {
	table *Table
}

// NewGate 创建 Gate
func NewGate(table *Table) *Gate {
	return &Gate{table: table}
}

// Authorize 返回 nil 表示放行，否则为 ErrUnknownAccount 或 ErrQuotaExceeded
func (g *Gate) Authorize(peer identity.Peer) error {
	a, ok := g.table.Lookup(peer.Account)
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "account %q", peer.Account)
	}
	if peer.Instance >= a.MaxInstances {
		return errors.Wrapf(ErrQuotaExceeded, "account %q instance %d, max_instances %d",
			peer.Account, peer.Instance, a.MaxInstances)
	}
	return nil
}

// RejectMessage 返回回复给被拒绝方的文本
func RejectMessage(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return quotaExceededMessage
	case errors.Is(err, ErrUnknownAccount):
		return unknownAccountMessage
	default:
		return err.Error()
	}
}
