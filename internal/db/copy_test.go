package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTestCopy = errors.New("copy failed")

func TestCopyInto_EmptyRows(t *testing.T) {
	n, err := CopyInto(context.TODO(), nil, "parks_raw", []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyInto(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"x", 1}, {"y", 2}}
	mock.ExpectCopyFrom(pgx.Identifier{"parks_raw"}, []string{"a", "b"}).WillReturnResult(2)

	n, err := CopyInto(context.Background(), mock, "parks_raw", []string{"a", "b"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyInto_SchemaQualified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"18097"}}
	mock.ExpectCopyFrom(pgx.Identifier{"geo", "counties"}, []string{"geoid"}).WillReturnResult(1)

	n, err := CopyInto(context.Background(), mock, "geo.counties", []string{"geoid"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyInto_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"parks_raw"}, []string{"a"}).WillReturnError(errTestCopy)

	_, err = CopyInto(context.Background(), mock, "parks_raw", []string{"a"}, [][]any{{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO parks_raw")
}
