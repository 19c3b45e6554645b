package account

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IntelLabs/networkgym/app/broker/internal/identity"
	"github.com/IntelLabs/networkgym/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `account_name,secret,max_instances
acme,acme-secret,2
official,gym,8
`

func mustTable(t *testing.T) *Table {
	t.Helper()
	accounts, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	table, err := NewTable(accounts)
	require.NoError(t, err)
	return table
}

func TestParseCSV(t *testing.T) {
	accounts, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, []Account{
		{Name: "acme", Secret: "acme-secret", MaxInstances: 2},
		{Name: "official", Secret: "gym", MaxInstances: 8},
	}, accounts)
}

func TestParseCSVMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "bad quota", data: "h1,h2,h3\nacme,s,many\n"},
		{name: "short row", data: "h1,h2,h3\nacme,s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrMalformedStore)
		})
	}
}

func TestNewTableRejectsInvalidRows(t *testing.T) {
	_, err := NewTable([]Account{{Name: "acme", MaxInstances: 0}})
	assert.ErrorIs(t, err, ErrMalformedStore)

	_, err = NewTable([]Account{{Name: "a-b", MaxInstances: 1}})
	assert.ErrorIs(t, err, ErrMalformedStore)

	_, err = NewTable([]Account{{Name: "acme", MaxInstances: 1}, {Name: "acme", MaxInstances: 2}})
	assert.ErrorIs(t, err, ErrMalformedStore)
}

func TestTableAuthenticate(t *testing.T) {
	hashed, err := crypto.NewBcryptHasher(crypto.WithCost(4)).Hash("hashed-secret")
	require.NoError(t, err)

	table, err := NewTable([]Account{
		{Name: "acme", Secret: "acme-secret", MaxInstances: 1},
		{Name: "beta", Secret: hashed, MaxInstances: 1},
	})
	require.NoError(t, err)

	assert.NoError(t, table.Authenticate("acme", "acme-secret"))
	assert.NoError(t, table.Authenticate("beta", "hashed-secret"))
	assert.ErrorIs(t, table.Authenticate("acme", "wrong"), ErrBadCredentials)
	assert.ErrorIs(t, table.Authenticate("ghost", "x"), ErrUnknownAccount)
	assert.Equal(t, []string{"acme", "beta"}, table.Names())
	assert.Equal(t, 2, table.Len())
}

func TestGateAuthorize(t *testing.T) {
	gate := NewGate(mustTable(t))

	tests := []struct {
		raw     string
		wantErr error
	}{
		{raw: "acme-0"},
		{raw: "acme-1"},
		{raw: "acme-2", wantErr: ErrQuotaExceeded},
		{raw: "acme-7", wantErr: ErrQuotaExceeded},
		{raw: "official-7"},
		{raw: "ghost-0", wantErr: ErrUnknownAccount},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			peer, err := identity.ParseClient(tt.raw)
			require.NoError(t, err)

			err = gate.Authorize(peer)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRejectMessage(t *testing.T) {
	gate := NewGate(mustTable(t))

	peer, _ := identity.ParseClient("acme-5")
	assert.Contains(t, RejectMessage(gate.Authorize(peer)), "--client_id=0")

	peer, _ = identity.ParseClient("ghost-0")
	assert.Equal(t, "Unkown user account", RejectMessage(gate.Authorize(peer)))
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	table, err := Load(context.Background(), &Config{Source: SourceCSV, CSVPath: path})
	require.NoError(t, err)
	a, ok := table.Lookup("official")
	require.True(t, ok)
	assert.Equal(t, 8, a.MaxInstances)

	_, err = Load(context.Background(), &Config{Source: SourceCSV, CSVPath: filepath.Join(t.TempDir(), "missing.csv")})
	assert.Error(t, err)

	_, err = Load(context.Background(), &Config{Source: "ldap"})
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestPostgresSourceQuery(t *testing.T) {
	sql, args, err := (&PostgresSource{}).Query()
	require.NoError(t, err)
	assert.Equal(t, "SELECT account_name, secret, max_instances FROM accounts ORDER BY account_name", sql)
	assert.Empty(t, args)

	sql, _, err = (&PostgresSource{Table: "gym.accounts"}).Query()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM gym.accounts")
}
