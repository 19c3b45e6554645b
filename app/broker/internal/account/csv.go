package account

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// CSVSource 从 CSV 文件加载账户，首行为表头：account_name,secret,max_instances
type CSVSource struct {
	Path string
}

// Load 实现 Source
func (s *CSVSource) Load(_ context.Context) ([]Account, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open account store %s", s.Path)
	}
	defer f.Close()

	accounts, err := ParseCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "account store %s", s.Path)
	}
	return accounts, nil
}

// ParseCSV 解析账户 CSV
func ParseCSV(r io.Reader) ([]Account, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrap(ErrMalformedStore, "missing header row")
		}
		return nil, errors.Mark(errors.Wrap(err, "read header"), ErrMalformedStore)
	}

	var accounts []Account
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "read row"), ErrMalformedStore)
		}

		line, _ := reader.FieldPos(0)
		maxInstances, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedStore, "line %d: max_instances %q", line, record[2])
		}
		accounts = append(accounts, Account{
			Name:         strings.TrimSpace(record[0]),
			Secret:       record[1],
			MaxInstances: maxInstances,
		})
	}
	return accounts, nil
}
