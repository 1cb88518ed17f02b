package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlbwmon/nlbwmon-go/internal/catalog"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/internal/report"
)

func hostRec(host byte, proto uint8, port uint16, rxBytes, rxPkts uint64) *recstore.Record {
	var addr [16]byte
	addr[12], addr[13], addr[14], addr[15] = 10, 0, 0, host
	return &recstore.Record{
		Family:  recstore.FamilyV4,
		Proto:   proto,
		DstPort: port,
		SrcAddr: addr,
		InBytes: rxBytes,
		InPkts:  rxPkts,
	}
}

// TestGroupBySortByHost implements spec.md §8 scenario 6: group by host,
// sort by rx_bytes desc, merging web+dns traffic for host A.
func TestGroupBySortByHost(t *testing.T) {
	cat := catalog.Empty()

	a := report.New([]report.Field{report.FieldHost}, report.DefaultSortProjection(), cat)

	require.NoError(t, a.Insert(hostRec(1, 6, 80, 10, 1)))  // A, web
	require.NoError(t, a.Insert(hostRec(1, 17, 53, 2, 2)))  // A, dns
	require.NoError(t, a.Insert(hostRec(2, 6, 80, 7, 1)))   // B, web

	rows := a.Finalize()
	require.Len(t, rows, 2)

	assert.EqualValues(t, 12, rows[0].InBytes)
	assert.EqualValues(t, 3, rows[0].InPkts)
	assert.EqualValues(t, 7, rows[1].InBytes)
	assert.EqualValues(t, 1, rows[1].InPkts)
}

func TestColumnsExpandsCompositeFields(t *testing.T) {
	a := report.New([]report.Field{report.FieldFamily, report.FieldHost, report.FieldLayer7}, report.DefaultSortProjection(), catalog.Empty())
	cols := a.Columns()
	assert.Equal(t, []string{"family", "mac", "ip", "proto", "port", "count", "tx_pkts", "tx_bytes", "rx_pkts", "rx_bytes"}, cols)
}

func TestParseSortKeyDescending(t *testing.T) {
	k, err := report.ParseSortKey("-rx_bytes")
	require.NoError(t, err)
	assert.True(t, k.Desc)

	k2, err := report.ParseSortKey("host")
	require.NoError(t, err)
	assert.False(t, k2.Desc)
}

func TestParseFieldUnknown(t *testing.T) {
	_, err := report.ParseField("bogus")
	assert.Error(t, err)
}
