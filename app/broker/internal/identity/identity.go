// Package identity 解析连接身份。
//
// 客户端身份为 {account}-{instance}，worker 身份为 {account}-{instance}-{host}，
// host 本身可以包含 '-'。账户名不能包含 '-'。
package identity

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrEmpty           = errors.New("identity: empty")
	ErrMalformed       = errors.New("identity: malformed")
	ErrInvalidInstance = errors.New("identity: invalid instance index")
)

// Kind 连接方类型
type Kind uint8

const (
	KindClient Kind = iota + 1
	KindWorker
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// Peer 已解析的连接身份，可比较，直接用作 map key
type Peer struct {
	Kind     Kind
	Account  string
	Instance int
	Host     string
}

// String 返回原始身份字符串
func (p Peer) String() string {
	s := p.Account + "-" + strconv.Itoa(p.Instance)
	if p.Kind == KindWorker {
		s += "-" + p.Host
	}
	return s
}

// IsZero 是否为空值
func (p Peer) IsZero() bool {
	return p == Peer{}
}

// ParseClient 解析客户端身份 {account}-{instance}
func ParseClient(raw string) (Peer, error) {
	account, rest, err := splitAccount(raw)
	if err != nil {
		return Peer{}, err
	}
	instance, err := parseInstance(rest, raw)
	if err != nil {
		return Peer{}, err
	}
	return Peer{Kind: KindClient, Account: account, Instance: instance}, nil
}

// ParseWorker 解析 worker 身份 {account}-{instance}-{host}
func ParseWorker(raw string) (Peer, error) {
	account, rest, err := splitAccount(raw)
	if err != nil {
		return Peer{}, err
	}
	inst, host, ok := strings.Cut(rest, "-")
	if !ok || host == "" {
		return Peer{}, errors.Wrapf(ErrMalformed, "worker identity %q has no host", raw)
	}
	instance, err := parseInstance(inst, raw)
	if err != nil {
		return Peer{}, err
	}
	return Peer{Kind: KindWorker, Account: account, Instance: instance, Host: host}, nil
}

// Parse 按 kind 解析
func Parse(kind Kind, raw string) (Peer, error) {
	if kind == KindWorker {
		return ParseWorker(raw)
	}
	return ParseClient(raw)
}

// AccountOf 返回身份中的账户名，不做完整校验
func AccountOf(raw string) string {
	account, _, _ := strings.Cut(raw, "-")
	return account
}

func splitAccount(raw string) (string, string, error) {
	if raw == "" {
		return "", "", ErrEmpty
	}
	account, rest, ok := strings.Cut(raw, "-")
	if !ok || account == "" || rest == "" {
		return "", "", errors.Wrapf(ErrMalformed, "identity %q", raw)
	}
	return account, rest, nil
}

func parseInstance(s, raw string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strconv.Itoa(n) != s {
		return 0, errors.Wrapf(ErrInvalidInstance, "identity %q", raw)
	}
	return n, nil
}
