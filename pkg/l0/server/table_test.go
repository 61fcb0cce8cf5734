package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	tbl := NewTable(3)
	require.Equal(t, 3, tbl.Cap())
	require.NoError(t, tbl.Register(1, []byte{1}, PermRead))
	require.NoError(t, tbl.Register(2, []byte{2}, PermWrite))
	require.NoError(t, tbl.Register(3, []byte{3}, PermRead|PermWrite))
	require.Equal(t, ErrTableFull, tbl.Register(4, nil, PermRead))

	item, ok := tbl.Lookup(2)
	require.True(t, ok)
	require.Equal(t, []byte{2}, item.Data)
	_, ok = tbl.Lookup(9)
	require.False(t, ok)

	require.True(t, tbl.Deregister(1))
	require.False(t, tbl.Deregister(1))
	ids := []byte{}
	for _, item := range tbl.Items() {
		ids = append(ids, item.ID)
	}
	require.Equal(t, []byte{3, 2}, ids)
	require.NoError(t, tbl.Register(4, nil, PermRead))
	require.Equal(t, 3, tbl.Len())
}

func TestPermission(t *testing.T) {
	testCases := []struct {
		str  string
		perm Permission
		name string
	}{
		{"r", PermRead, "read"},
		{"w", PermWrite, "write"},
		{"rw", PermRead | PermWrite, "read|write"},
		{"RWN", PermRead | PermWrite | PermNotify, "read|write|notify"},
		{"", 0, "none"},
	}
	for _, tc := range testCases {
		p, err := ParsePermission(tc.str)
		require.NoError(t, err)
		require.Equal(t, tc.perm, p)
		require.Equal(t, tc.name, p.String())
	}
	_, err := ParsePermission("rx")
	require.Error(t, err)
}
