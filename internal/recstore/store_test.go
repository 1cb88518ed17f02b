package recstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/pkg/errors"
)

func addr(last byte) [16]byte {
	var a [16]byte
	a[12], a[13], a[14], a[15] = 10, 0, 0, last
	return a
}

func sampleRecord(host byte, port uint16) *recstore.Record {
	return &recstore.Record{
		Family:   recstore.FamilyV4,
		Proto:    6,
		DstPort:  port,
		SrcAddr:  addr(host),
		Count:    1,
		OutPkts:  1,
		OutBytes: 100,
	}
}

func TestInsertMergesSameIdentity(t *testing.T) {
	s := recstore.NewPeriodStore(20250101, false, 0)

	require.NoError(t, s.Insert(sampleRecord(1, 80)))
	require.NoError(t, s.Insert(sampleRecord(1, 80)))

	assert.Equal(t, 1, s.Len())

	var seen *recstore.Record
	for rec := range s.Iter() {
		seen = rec
	}
	require.NotNil(t, seen)
	assert.EqualValues(t, 2, seen.Count)
	assert.EqualValues(t, 200, seen.OutBytes)
}

func TestInsertDistinctIdentitiesDoNotMerge(t *testing.T) {
	s := recstore.NewPeriodStore(20250101, false, 0)

	require.NoError(t, s.Insert(sampleRecord(1, 80)))
	require.NoError(t, s.Insert(sampleRecord(2, 80)))
	require.NoError(t, s.Insert(sampleRecord(1, 443)))

	assert.Equal(t, 3, s.Len())
}

func TestInsertMergeIsOrderIndependent(t *testing.T) {
	a := recstore.NewPeriodStore(20250101, false, 0)
	b := recstore.NewPeriodStore(20250101, false, 0)

	r1, r2, r3 := sampleRecord(1, 80), sampleRecord(1, 80), sampleRecord(1, 80)
	r1.Count, r2.Count, r3.Count = 1, 2, 3

	require.NoError(t, a.Insert(r1))
	require.NoError(t, a.Insert(r2))
	require.NoError(t, a.Insert(r3))

	require.NoError(t, b.Insert(r3))
	require.NoError(t, b.Insert(r1))
	require.NoError(t, b.Insert(r2))

	var aCount, bCount uint64
	for rec := range a.Iter() {
		aCount = rec.Count
	}
	for rec := range b.Iter() {
		bCount = rec.Count
	}
	assert.Equal(t, aCount, bCount)
	assert.EqualValues(t, 6, aCount)
}

func TestUpdateWithoutMatchReturnsMissing(t *testing.T) {
	s := recstore.NewPeriodStore(20250101, false, 0)
	err := s.Update(sampleRecord(9, 80))

	require.Error(t, err)
	assert.True(t, errors.IsMissing(err))
}

func TestUpdateMergesExistingRecord(t *testing.T) {
	s := recstore.NewPeriodStore(20250101, false, 0)
	require.NoError(t, s.Insert(sampleRecord(1, 80)))
	require.NoError(t, s.Update(sampleRecord(1, 80)))

	var seen *recstore.Record
	for rec := range s.Iter() {
		seen = rec
	}
	assert.EqualValues(t, 2, seen.Count)
}

func TestStoreGrowsPastInitialCapacity(t *testing.T) {
	s := recstore.NewPeriodStore(20250101, false, 0)
	initial := s.Capacity()

	for i := 0; i < initial+1; i++ {
		require.NoError(t, s.Insert(sampleRecord(byte(i%255), uint16(i))))
	}

	assert.Greater(t, s.Capacity(), initial)
	assert.Equal(t, initial+1, s.Len())
}

func TestStoreCircularOverwriteAtHardLimit(t *testing.T) {
	s := recstore.NewPeriodStore(20250101, true, 4)
	require.Equal(t, 4, s.Capacity())

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Insert(sampleRecord(byte(i), uint16(1))))
	}
	assert.Equal(t, 4, s.Len())

	// A fifth distinct identity must evict, not grow past the limit.
	require.NoError(t, s.Insert(sampleRecord(200, uint16(1))))
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, 4, s.Capacity())

	var hosts []byte
	for rec := range s.Iter() {
		hosts = append(hosts, rec.SrcAddr[15])
	}
	assert.Contains(t, hosts, byte(200))
	assert.NotContains(t, hosts, byte(0))
}

func TestReorderPreservesRecordsUnderNewComparator(t *testing.T) {
	s := recstore.NewPeriodStore(20250101, false, 0)
	require.NoError(t, s.Insert(sampleRecord(3, 80)))
	require.NoError(t, s.Insert(sampleRecord(1, 80)))
	require.NoError(t, s.Insert(sampleRecord(2, 80)))

	byHostAsc := func(a, b *recstore.Record, _ any) int {
		switch {
		case a.SrcAddr[15] < b.SrcAddr[15]:
			return -1
		case a.SrcAddr[15] > b.SrcAddr[15]:
			return 1
		default:
			return 0
		}
	}
	s.Reorder(byHostAsc, nil)

	var hosts []byte
	for rec := range s.Iter() {
		hosts = append(hosts, rec.SrcAddr[15])
	}
	assert.Equal(t, []byte{1, 2, 3}, hosts)
}

func TestResetForPeriodClearsEntriesButKeepsBuffer(t *testing.T) {
	s := recstore.NewPeriodStore(20250101, false, 0)
	require.NoError(t, s.Insert(sampleRecord(1, 80)))
	require.NoError(t, s.Insert(sampleRecord(2, 80)))

	s.ResetForPeriod(20250201)

	assert.Equal(t, 0, s.Len())
	assert.EqualValues(t, 20250201, s.Timestamp)

	count := 0
	for range s.Iter() {
		count++
	}
	assert.Equal(t, 0, count)
}

func TestMemStoreUsesCustomComparator(t *testing.T) {
	byCount := func(a, b *recstore.Record, _ any) int {
		switch {
		case a.Count < b.Count:
			return -1
		case a.Count > b.Count:
			return 1
		default:
			return 0
		}
	}
	s := recstore.NewMemStore(byCount, nil)

	r1, r2 := sampleRecord(1, 80), sampleRecord(2, 443)
	r1.Count, r2.Count = 5, 1
	require.NoError(t, s.Insert(r1))
	require.NoError(t, s.Insert(r2))

	var counts []uint64
	for rec := range s.Iter() {
		counts = append(counts, rec.Count)
	}
	assert.Equal(t, []uint64{1, 5}, counts)
}
