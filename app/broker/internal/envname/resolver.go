// Package envname 计算带租户命名空间的环境名。
package envname

// DefaultCustomEnv 通用自定义环境的目录名
const DefaultCustomEnv = "custom"

// Resolver 环境名解析器
//
// 官方账户可以使用目录中的具名环境，只有通用 custom 名称会被改写为私有名称；
// 其他账户一律只能使用 "{account}-{custom}"。
type Resolver struct {
	officialAccount string
	customEnv       string
}

// New 创建解析器，customEnv 为空时使用 DefaultCustomEnv
func New(officialAccount, customEnv string) *Resolver {
	if customEnv == "" {
		customEnv = DefaultCustomEnv
	}
	return &Resolver{officialAccount: officialAccount, customEnv: customEnv}
}

// Private 账户的私有自定义环境名
func (r *Resolver) Private(account string) string {
	return account + "-" + r.customEnv
}

// IsOfficial 是否为官方账户
func (r *Resolver) IsOfficial(account string) bool {
	return r.officialAccount != "" && account == r.officialAccount
}

// Resolve 客户端请求的环境名到匹配用的规范名
func (r *Resolver) Resolve(account, requested string) string {
	if !r.IsOfficial(account) || requested == r.customEnv {
		return r.Private(account)
	}
	return requested
}

// ResolveList worker 声明的能力列表，去重并保持顺序
func (r *Resolver) ResolveList(account string, names []string) []string {
	if !r.IsOfficial(account) {
		return []string{r.Private(account)}
	}

	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		resolved := r.Resolve(account, name)
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	}
	return out
}
