package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	appsettlement "github.com/erp/reconciler/internal/application/settlement"
	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/erp/reconciler/internal/infrastructure/config"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	db, err := newDatabase(dialector, &config.DatabaseConfig{
		MaxOpenConns: 10,
		MaxIdleConns: 2,
		LogLevel:     "silent",
	}, zap.NewNop(), telemetry.NewDBTracingPlugin(telemetry.DefaultDBTracingConfig(), zap.NewNop()))
	require.NoError(t, err)

	return db, mock, mockDB
}

func TestDatabase_Stats(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	stats, err := db.Stats()

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

func TestDatabase_Ping(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectPing()

	assert.NoError(t, db.Ping())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The movement provider counts and pages within the same kind and date scope.
func TestGormMovementSource_QueryShape(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "stock_movements" WHERE kind = \$1 AND occurred_at >= \$2 AND party_id = \$3`).
		WithArgs("receipt", from, "sup-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT \* FROM "stock_movements" WHERE kind = \$1 AND occurred_at >= \$2 AND party_id = \$3 ORDER BY occurred_at ASC, id ASC LIMIT \$4 OFFSET \$5`).
		WithArgs("receipt", from, "sup-1", 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "party_id", "unit_price", "occurred_at"}).
			AddRow("r3", "receipt", "sup-1", "4.5", from.Add(time.Hour)))

	source := NewGormMovementSource(db.DB, settlement.MovementKindReceipt)
	page, err := source.FetchPage(context.Background(), appsettlement.PageRequest{
		Page:     2,
		PageSize: 2,
		Filter:   appsettlement.Filter{From: &from, PartyID: "sup-1"},
	})

	require.NoError(t, err)
	require.NotNil(t, page.Pagination)
	assert.Equal(t, 2, page.Pagination.Pages)
	assert.Equal(t, 3, page.Pagination.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "r3", page.Items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormPaymentSource_QueryError(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "supplier_payments"`).
		WillReturnError(sql.ErrConnDone)

	source := NewGormPaymentSource(db.DB)
	page, err := source.FetchPage(context.Background(), appsettlement.PageRequest{Page: 1, PageSize: 10})

	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.False(t, page.Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}
