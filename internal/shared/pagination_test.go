package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 45, p.Total)
	require.Equal(t, 3, p.TotalPages)
}

func TestNewPaginationExactFit(t *testing.T) {
	p := NewPagination(2, 10, 40)
	require.Equal(t, 4, p.TotalPages)

	empty := NewPagination(1, 10, 0)
	require.Zero(t, empty.TotalPages)
}

func TestPaginationWindowClamps(t *testing.T) {
	start, end := NewPagination(2, 2, 5).Window()
	require.Equal(t, 2, start)
	require.Equal(t, 4, end)

	start, end = NewPagination(9, 2, 5).Window()
	require.Equal(t, 5, start)
	require.Equal(t, 5, end)
}
