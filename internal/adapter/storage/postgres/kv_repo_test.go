package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewKVRepo(mock)

	mock.ExpectQuery("SELECT v FROM kv").
		WithArgs("mode").
		WillReturnRows(pgxmock.NewRows([]string{"v"}).AddRow("night"))

	value, found, err := repo.Get(context.Background(), "mode")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "night", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVRepo_Get_Missing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewKVRepo(mock)

	mock.ExpectQuery("SELECT v FROM kv").
		WithArgs("mode").
		WillReturnError(pgx.ErrNoRows)

	_, found, err := repo.Get(context.Background(), "mode")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVRepo_Set(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewKVRepo(mock)

	mock.ExpectExec("INSERT INTO kv").
		WithArgs("mode", "day").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Set(context.Background(), "mode", "day")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
