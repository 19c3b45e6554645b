package envname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	r := New("official", "")

	tests := []struct {
		name      string
		account   string
		requested string
		want      string
	}{
		{name: "official named env", account: "official", requested: "nqos_split", want: "nqos_split"},
		{name: "official custom", account: "official", requested: "custom", want: "official-custom"},
		{name: "tenant custom", account: "acme", requested: "custom", want: "acme-custom"},
		{name: "tenant cannot claim official env", account: "acme", requested: "nqos_split", want: "acme-custom"},
		{name: "tenant cannot claim another tenant", account: "acme", requested: "beta-custom", want: "acme-custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.account, tt.requested))
		})
	}
}

func TestResolveList(t *testing.T) {
	r := New("official", "my_custom")

	assert.Equal(t,
		[]string{"nqos_split", "official-my_custom", "qos_steer"},
		r.ResolveList("official", []string{"nqos_split", "my_custom", "qos_steer", "nqos_split", ""}))

	assert.Equal(t,
		[]string{"acme-my_custom"},
		r.ResolveList("acme", []string{"nqos_split", "acme-my_custom"}))

	assert.Equal(t, []string{"acme-my_custom"}, r.ResolveList("acme", nil))
}

func TestNoOfficialAccount(t *testing.T) {
	r := New("", "custom")
	assert.False(t, r.IsOfficial(""))
	assert.Equal(t, "acme-custom", r.Resolve("acme", "nqos_split"))
}
