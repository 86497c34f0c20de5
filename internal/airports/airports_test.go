package airports

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightmap/internal/domain"
)

func TestDefaultTable(t *testing.T) {
	table := Default()
	require.NotNil(t, table)
	assert.Greater(t, table.Len(), 20)

	jfk, ok := table.Lookup("jfk")
	require.True(t, ok)
	assert.Equal(t, "JFK", jfk.Code)
	assert.InDelta(t, 40.64, jfk.Lat, 0.01)
	assert.InDelta(t, -73.78, jfk.Lng, 0.01)
}

func TestCountry(t *testing.T) {
	table := Default()

	tests := []struct {
		code string
		want string
	}{
		{"JFK", "US"},
		{"YYZ", "CA"},
		{"LHR", "GB"},
		{"SJU", DefaultCountry},
		{"ZZZ", DefaultCountry},
		{"", DefaultCountry},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Country(tt.code))
		})
	}
}

func TestName(t *testing.T) {
	table := New([]domain.Airport{{Code: "abc", Name: "Alpha"}, {Code: "XYZ"}})

	assert.Equal(t, "Alpha", table.Name("ABC"))
	assert.Equal(t, "XYZ", table.Name("XYZ"))
	assert.Equal(t, "QQQ", table.Name("QQQ"))
	assert.Equal(t, []string{"ABC", "XYZ"}, table.Codes())
}

func TestLoad(t *testing.T) {
	table, err := Load(strings.NewReader(`[{"code":"bos","name":"Logan","lat":42.36,"lng":-71.0}]`))
	require.NoError(t, err)

	a, ok := table.Lookup("BOS")
	require.True(t, ok)
	assert.Equal(t, "Logan", a.Name)

	_, err = Load(strings.NewReader(`{"code":"bos"}`))
	assert.Error(t, err)
}
