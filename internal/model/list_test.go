package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListQuery_Offset(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, ListQuery{}.Offset())
	require.Equal(t, 0, ListQuery{Page: 1, Limit: 10}.Offset())
	require.Equal(t, 20, ListQuery{Page: 3, Limit: 10}.Offset())
	require.Equal(t, 0, ListQuery{Page: 3}.Offset())
}

func TestTotalPages(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, TotalPages(0, 10))
	require.Equal(t, 1, TotalPages(10, 10))
	require.Equal(t, 2, TotalPages(11, 10))
	require.Equal(t, 1, TotalPages(5, 0))
}

func TestForm_ValueHas(t *testing.T) {
	t.Parallel()

	var empty Form
	require.Equal(t, "", empty.Value("x"))
	require.False(t, empty.Has("x"))

	f := Form{Values: map[string]string{"title": "t", "link": ""}}
	require.Equal(t, "t", f.Value("title"))
	require.True(t, f.Has("link"))
	require.False(t, f.Has("info"))
}
