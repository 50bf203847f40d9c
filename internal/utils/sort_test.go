package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortDates(t *testing.T) {
	a := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, []time.Time{a, b, c}, SortDates([]time.Time{b, c, a}, true))
	assert.Equal(t, []time.Time{c, b, a}, SortDates([]time.Time{b, c, a}, false))
}

func TestGetSortedKeysMostRecentFirst(t *testing.T) {
	a := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	m := map[time.Time]string{a: "older", b: "newer"}

	keys := GetSortedKeys(m, false)
	assert.Equal(t, []time.Time{b, a}, keys)
}
