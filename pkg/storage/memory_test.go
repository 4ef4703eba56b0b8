package storage_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/absmach/rendezvous/pkg/errors"
	"github.com/absmach/rendezvous/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc  string
		key   string
		value interface{}
		setup func(t *testing.T, ctx context.Context, s storage.Storage)
		err   error
	}{
		{
			desc:  "create entry",
			key:   "round-1",
			value: "data",
		},
		{
			desc: "create entry with empty key",
			key:  "",
			err:  errors.ErrEmptyKey,
		},
		{
			desc:  "create existing entry",
			key:   "round-1",
			value: "data",
			setup: func(t *testing.T, ctx context.Context, s storage.Storage) {
				err := s.Create(ctx, "round-1", "data")
				require.NoError(t, err)
			},
			err: errors.ErrEntityExists,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			s := storage.NewInMemoryStorage()
			ctx := context.Background()
			if tc.setup != nil {
				tc.setup(t, ctx, s)
			}

			err := s.Create(ctx, tc.key, tc.value)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)

			got, err := s.Get(ctx, tc.key)
			assert.NoError(t, err)
			assert.Equal(t, tc.value, got)
		})
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		key  string
		err  error
	}{
		{
			desc: "get entry",
			key:  "round-1",
		},
		{
			desc: "get entry with empty key",
			key:  "",
			err:  errors.ErrEmptyKey,
		},
		{
			desc: "get missing entry",
			key:  "round-2",
			err:  errors.ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			s := storage.NewInMemoryStorage()
			ctx := context.Background()
			err := s.Create(ctx, "round-1", "data")
			require.NoError(t, err)

			got, err := s.Get(ctx, tc.key)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "data", got)
		})
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		key  string
		err  error
	}{
		{
			desc: "update entry",
			key:  "round-1",
		},
		{
			desc: "update entry with empty key",
			key:  "",
			err:  errors.ErrEmptyKey,
		},
		{
			desc: "update missing entry",
			key:  "round-2",
			err:  errors.ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			s := storage.NewInMemoryStorage()
			ctx := context.Background()
			err := s.Create(ctx, "round-1", "data")
			require.NoError(t, err)

			err = s.Update(ctx, tc.key, "updated")
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)

			got, err := s.Get(ctx, tc.key)
			assert.NoError(t, err)
			assert.Equal(t, "updated", got)
		})
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		key  string
		err  error
	}{
		{
			desc: "delete entry",
			key:  "round-1",
		},
		{
			desc: "delete entry with empty key",
			key:  "",
			err:  errors.ErrEmptyKey,
		},
		{
			desc: "delete missing entry",
			key:  "round-2",
			err:  errors.ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			s := storage.NewInMemoryStorage()
			ctx := context.Background()
			err := s.Create(ctx, "round-1", "data")
			require.NoError(t, err)

			err = s.Delete(ctx, tc.key)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)

			_, err = s.Get(ctx, tc.key)
			assert.ErrorIs(t, err, errors.ErrNotFound)
		})
	}
}

func TestListOrder(t *testing.T) {
	t.Parallel()

	s := storage.NewInMemoryStorage()
	ctx := context.Background()

	// Insertion order must not leak into the listing, zero padded keys
	// come back in numeric order.
	for _, i := range []int{2, 10, 1} {
		err := s.Create(ctx, fmt.Sprintf("%012d", i), i)
		require.NoError(t, err)
	}

	entries, total, err := s.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)
	assert.Equal(t, []interface{}{1, 2, 10}, entries)
}

func TestListPaging(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc     string
		offset   uint64
		limit    uint64
		expected []interface{}
	}{
		{
			desc:     "list all entries",
			offset:   0,
			limit:    10,
			expected: []interface{}{0, 1, 2, 3, 4},
		},
		{
			desc:     "list with offset and limit",
			offset:   2,
			limit:    2,
			expected: []interface{}{2, 3},
		},
		{
			desc:     "list last entry",
			offset:   4,
			limit:    10,
			expected: []interface{}{4},
		},
		{
			desc:   "list with offset equal to total",
			offset: 5,
			limit:  10,
		},
		{
			desc:   "list with offset beyond total",
			offset: 7,
			limit:  10,
		},
		{
			desc:   "list with zero limit",
			offset: 0,
			limit:  0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			s := storage.NewInMemoryStorage()
			ctx := context.Background()
			for i := range 5 {
				err := s.Create(ctx, fmt.Sprintf("%03d", i), i)
				require.NoError(t, err)
			}

			entries, total, err := s.List(ctx, tc.offset, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, uint64(5), total)
			if tc.expected == nil {
				assert.Empty(t, entries)

				return
			}
			assert.Equal(t, tc.expected, entries)
		})
	}
}
