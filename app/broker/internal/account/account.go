// Package account 加载租户账户表并执行配额检查。
package account

import (
	"sort"
	"strings"

	"github.com/IntelLabs/networkgym/pkg/crypto"
	"github.com/cockroachdb/errors"
)

// Account 租户账户，加载后不可变
type Account struct {
	Name         string `db:"account_name"`
	Secret       string `db:"secret"`
	MaxInstances int    `db:"max_instances"`
}

func (a Account) validate() error {
	if a.Name == "" {
		return errors.Wrap(ErrMalformedStore, "empty account name")
	}
	if strings.Contains(a.Name, "-") {
		return errors.Wrapf(ErrMalformedStore, "account name %q contains '-'", a.Name)
	}
	if a.MaxInstances <= 0 {
		return errors.Wrapf(ErrMalformedStore, "account %q: max_instances must be positive, got %d", a.Name, a.MaxInstances)
	}
	return nil
}

// Table 只读账户表，可被多个 goroutine 并发读取
type Table struct {
	accounts map[string]Account
}

// NewTable 校验并构建账户表，重复或非法的行视为存储损坏
func NewTable(accounts []Account) (*Table, error) {
	t := &Table{accounts: make(map[string]Account, len(accounts))}
	for _, a := range accounts {
		if err := a.validate(); err != nil {
			return nil, err
		}
		if _, dup := t.accounts[a.Name]; dup {
			return nil, errors.Wrapf(ErrMalformedStore, "duplicate account %q", a.Name)
		}
		t.accounts[a.Name] = a
	}
	return t, nil
}

// Lookup 按名称查找账户
func (t *Table) Lookup(name string) (Account, bool) {
	a, ok := t.accounts[name]
	return a, ok
}

// Len 账户数
func (t *Table) Len() int {
	return len(t.accounts)
}

// Names 按字典序返回账户名
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.accounts))
	for name := range t.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Authenticate 校验传输层握手凭证
func (t *Table) Authenticate(username, secret string) error {
	a, ok := t.accounts[username]
	if !ok {
		return errors.Wrapf(ErrUnknownAccount, "account %q", username)
	}
	if err := crypto.VerifySecret(a.Secret, secret); err != nil {
		return errors.Wrapf(ErrBadCredentials, "account %q", username)
	}
	return nil
}
