package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/chimera-core/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestStore_UpsertReturnsLeadID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO leads").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("42"))

	leadID, err := store.Upsert(context.Background(), map[string]any{
		"linkedinUrl": "https://linkedin.com/in/jdoe",
		"name":        "John Doe",
		"phone":       "+13055550100",
	})

	assert.NoError(t, err)
	assert.Equal(t, "42", leadID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertRejectsMissingLinkedInURL(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.Upsert(context.Background(), map[string]any{"name": "John Doe"})

	assert.Error(t, err)
}

func TestStore_GetBlueprintUnmarshalsSteps(t *testing.T) {
	store, mock := newMockStore(t)
	steps, err := json.Marshal([]domain.BlueprintStep{{Type: domain.StepGoto, URL: "https://acme.com/{lastName}"}})
	require.NoError(t, err)
	mock.ExpectQuery("SELECT steps FROM site_blueprints").
		WithArgs("acme.com").
		WillReturnRows(sqlmock.NewRows([]string{"steps"}).AddRow(steps))

	blueprint, ok, err := store.Get(context.Background(), "acme.com")

	assert.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, blueprint.Steps, 1)
	assert.Equal(t, domain.StepGoto, blueprint.Steps[0].Type)
}

func TestStore_GetBlueprintMissingReturnsNotOK(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT steps FROM site_blueprints").
		WithArgs("unknown.com").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := store.Get(context.Background(), "unknown.com")

	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_AllocateEntropyPersistsSeeds(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO hardware_entropy").WillReturnResult(sqlmock.NewResult(1, 1))

	seeds, err := store.Allocate(context.Background(), "worker-1", "mission-1")

	assert.NoError(t, err)
	assert.Equal(t, "worker-1", seeds.WorkerID)
	assert.Equal(t, "mission-1", seeds.MissionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
