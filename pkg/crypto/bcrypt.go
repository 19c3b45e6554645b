package crypto

import (
	"crypto/subtle"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/bcrypt"
)

// ErrSecretMismatch 密钥不匹配
var ErrSecretMismatch = errors.New("secret mismatch")

// BcryptHasher 提供 bcrypt 哈希功能，用于账户密钥
type BcryptHasher struct {
	cost int
}

// BcryptOption bcrypt 配置选项
type BcryptOption func(*BcryptHasher)

// WithCost 设置 bcrypt 工作因子 (4-31，默认 10)
func WithCost(cost int) BcryptOption {
	return func(h *BcryptHasher) {
		h.cost = cost
	}
}

// NewBcryptHasher 创建 bcrypt 哈希器
func NewBcryptHasher(opts ...BcryptOption) *BcryptHasher {
	h := &BcryptHasher{
		cost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash 对密钥进行哈希
func (h *BcryptHasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", errors.Wrap(err, "failed to hash secret")
	}
	return string(hashed), nil
}

// Verify 验证密钥是否与哈希匹配
func (h *BcryptHasher) Verify(secret, hashed string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrSecretMismatch
		}
		return errors.Wrap(err, "failed to verify secret")
	}
	return nil
}

// IsBcryptHash 判断存储值是否为 bcrypt 哈希 ($2a$/$2b$/$2y$)
func IsBcryptHash(stored string) bool {
	return len(stored) == 60 &&
		(strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$"))
}

// VerifySecret 校验客户端提交的密钥
// 存储值为 bcrypt 哈希时按哈希比较，否则按明文常量时间比较
func VerifySecret(stored, given string) error {
	if IsBcryptHash(stored) {
		return NewBcryptHasher().Verify(given, stored)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(given)) != 1 {
		return ErrSecretMismatch
	}
	return nil
}
