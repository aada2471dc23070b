package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJobTables(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS research_jobs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS research_logs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("idx_research_logs_job_id").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("idx_research_jobs_created_at").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, CreateJobTables(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobTablesError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("permission denied")
	mock.ExpectExec("research_jobs").WillReturnError(boom)

	err = CreateJobTables(context.Background(), mock)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "failed to create research_jobs table")
}

func TestCreateEmbeddingsTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "research_notes"`) + `(?s).*` + regexp.QuoteMeta("vector(1536)")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`"research_notes_embedding_idx"`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, CreateEmbeddingsTable(context.Background(), mock, "research_notes", 1536))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEmbeddingsTableSkipsIndexForWideVectors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("vector(3072)")).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, CreateEmbeddingsTable(context.Background(), mock, "research_notes", 3072))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.ErrorContains(t, CreateEmbeddingsTable(context.Background(), mock, "research_notes", 0), "invalid embedding dimension")
}

func TestEnsureVectorExtension(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, EnsureVectorExtension(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
