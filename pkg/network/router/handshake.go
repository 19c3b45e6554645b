package router

import "strings"

// 握手命令
const (
	CmdPlain = "PLAIN"
	CmdReady = "READY"
	CmdError = "ERROR"
)

// Authenticator 校验用户名与口令
type Authenticator interface {
	Authenticate(username, secret string) error
}

// AuthenticatorFunc 函数式 Authenticator
type AuthenticatorFunc func(username, secret string) error

func (f AuthenticatorFunc) Authenticate(username, secret string) error { return f(username, secret) }

// IdentityValidator 校验连接声明的身份串格式
type IdentityValidator func(identity string) error

// identityAccount 取身份串中第一个 '-' 之前的账户名
func identityAccount(identity string) string {
	if i := strings.IndexByte(identity, '-'); i >= 0 {
		return identity[:i]
	}
	return identity
}

func plainRequest(username, password, identity string) [][]byte {
	return [][]byte{[]byte(CmdPlain), []byte(username), []byte(password), []byte(identity)}
}
