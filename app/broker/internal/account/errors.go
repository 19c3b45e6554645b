package account

import "github.com/cockroachdb/errors"

var (
	// ErrUnknownAccount 身份中的账户不在账户表中
	ErrUnknownAccount = errors.New("unknown account")
	// ErrQuotaExceeded 实例序号超出账户配额
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrBadCredentials 握手密钥错误
	ErrBadCredentials = errors.New("bad credentials")
	// ErrMalformedStore 账户存储无法解析
	ErrMalformedStore = errors.New("malformed account store")
	// ErrUnknownSource 未知的账户来源
	ErrUnknownSource = errors.New("unknown account source")
)
