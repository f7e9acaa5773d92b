package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanStated_ScenarioBLine(t *testing.T) {
	var st Stated
	found := scanStated("Occupied: 326,695 sq ft, Vacant: 22,965 sq ft, Total: 349,660 sq ft", &st)
	require.True(t, found)

	require.NotNil(t, st.OccupiedArea)
	assert.Equal(t, 326695.0, *st.OccupiedArea)
	require.NotNil(t, st.VacantArea)
	assert.Equal(t, 22965.0, *st.VacantArea)
	require.NotNil(t, st.TotalArea)
	assert.Equal(t, 349660.0, *st.TotalArea)
}

func TestScanStated_LeaseCount(t *testing.T) {
	var st Stated
	require.True(t, scanStated("Total: 37 leases", &st))
	require.NotNil(t, st.LeaseCount)
	assert.Equal(t, 37, *st.LeaseCount)

	var st2 Stated
	require.True(t, scanStated("Total Leases: 42 units", &st2))
	require.NotNil(t, st2.LeaseCount)
	assert.Equal(t, 42, *st2.LeaseCount)
}

func TestScanStated_TotalDoesNotSwallowOccupied(t *testing.T) {
	var st Stated
	scanStated("Total Occupied: 326,695 sq ft", &st)

	require.NotNil(t, st.OccupiedArea)
	assert.Equal(t, 326695.0, *st.OccupiedArea)
	assert.Nil(t, st.TotalArea)
}

func TestScanStated_DataRowNotASummary(t *testing.T) {
	var st Stated
	assert.False(t, scanStated("101  Acme Deli LLC  1,200  2,500.00", &st))
}

func TestScanStated_FirstValueWins(t *testing.T) {
	var st Stated
	scanStated("Total: 100,000 sq ft", &st)
	scanStated("Total: 999,999 sq ft", &st)

	require.NotNil(t, st.TotalArea)
	assert.Equal(t, 100000.0, *st.TotalArea)
}
