package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cuotas/backend/internal/domain/billing"
	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/cuotas/backend/internal/domain/shared/valueobject"
)

func moneyARS(t *testing.T, value string) valueobject.Money {
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return valueobject.NewMoneyARS(d)
}

// newMockDB creates a GORM connection backed by sqlmock
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func newMockStudentRepository(t *testing.T) (*GormStudentRepository, sqlmock.Sqlmock, *sql.DB) {
	gormDB, mock, mockDB := newMockDB(t)
	return NewGormStudentRepository(gormDB), mock, mockDB
}

func studentRows(id uuid.UUID, dni string, total, paid, balance decimal.Decimal) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "dni", "first_name", "last_name", "email",
		"total_amount", "installments", "paid_amount", "balance", "credential_hash",
	}).AddRow(id, dni, "Ana", "García", "ana@example.com", total, 3, paid, balance, "$2a$10$hash")
}

func TestGormStudentRepository_FindByID(t *testing.T) {
	t.Run("finds existing student", func(t *testing.T) {
		repo, mock, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		studentID := uuid.New()
		total := decimal.NewFromInt(30000)

		mock.ExpectQuery(`SELECT \* FROM "students" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(studentID, 1).
			WillReturnRows(studentRows(studentID, "30123456", total, decimal.Zero, total))

		student, err := repo.FindByID(context.Background(), studentID)

		assert.NoError(t, err)
		require.NotNil(t, student)
		assert.Equal(t, studentID, student.ID)
		assert.Equal(t, "30123456", student.DNI)
		assert.True(t, student.LedgerConsistent())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil without error when absent", func(t *testing.T) {
		repo, mock, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		studentID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "students" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(studentID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		student, err := repo.FindByID(context.Background(), studentID)

		assert.NoError(t, err)
		assert.Nil(t, student)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStudentRepository_FindByDNI(t *testing.T) {
	t.Run("finds student by dni", func(t *testing.T) {
		repo, mock, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		studentID := uuid.New()
		total := decimal.NewFromInt(30000)

		mock.ExpectQuery(`SELECT \* FROM "students" WHERE dni = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("30123456", 1).
			WillReturnRows(studentRows(studentID, "30123456", total, decimal.Zero, total))

		student, err := repo.FindByDNI(context.Background(), "30123456")

		assert.NoError(t, err)
		require.NotNil(t, student)
		assert.Equal(t, "30123456", student.DNI)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil without error for unknown dni", func(t *testing.T) {
		repo, mock, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "students" WHERE dni = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("99999999", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		student, err := repo.FindByDNI(context.Background(), "99999999")

		assert.NoError(t, err)
		assert.Nil(t, student)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStudentRepository_Create(t *testing.T) {
	t.Run("inserts new student", func(t *testing.T) {
		repo, mock, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		student, err := billing.NewStudent(
			"30123456", "Ana", "García", "ana@example.com",
			uuid.New(), uuid.New(), uuid.New(),
			moneyARS(t, "30000"), 3, "$2a$10$hash",
		)
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO "students"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.Create(context.Background(), student)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStudentRepository_Save(t *testing.T) {
	t.Run("updates profile columns only", func(t *testing.T) {
		repo, mock, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		student, err := billing.NewStudent(
			"30123456", "Ana", "García", "ana@example.com",
			uuid.New(), uuid.New(), uuid.New(),
			moneyARS(t, "30000"), 3, "$2a$10$hash",
		)
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE "students" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.Save(context.Background(), student)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when no row updated", func(t *testing.T) {
		repo, mock, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		student, err := billing.NewStudent(
			"30123456", "Ana", "García", "ana@example.com",
			uuid.New(), uuid.New(), uuid.New(),
			moneyARS(t, "30000"), 3, "$2a$10$hash",
		)
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE "students" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = repo.Save(context.Background(), student)

		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStudentRepository_IncrementPaid(t *testing.T) {
	t.Run("returns new totals", func(t *testing.T) {
		repo, mock, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		studentID := uuid.New()
		amount := decimal.NewFromInt(10000)

		mock.ExpectQuery(`UPDATE students\s+SET paid_amount = paid_amount \+ \$1`).
			WithArgs(amount, amount, studentID).
			WillReturnRows(sqlmock.NewRows([]string{"paid_amount", "balance"}).
				AddRow(decimal.NewFromInt(10000), decimal.NewFromInt(20000)))

		totals, err := repo.IncrementPaid(context.Background(), studentID, amount)

		assert.NoError(t, err)
		require.NotNil(t, totals)
		assert.True(t, totals.PaidAmount.Equal(decimal.NewFromInt(10000)))
		assert.True(t, totals.Balance.Equal(decimal.NewFromInt(20000)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for unknown student", func(t *testing.T) {
		repo, mock, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		studentID := uuid.New()
		amount := decimal.NewFromInt(10000)

		mock.ExpectQuery(`UPDATE students\s+SET paid_amount = paid_amount \+ \$1`).
			WithArgs(amount, amount, studentID).
			WillReturnRows(sqlmock.NewRows([]string{"paid_amount", "balance"}))

		totals, err := repo.IncrementPaid(context.Background(), studentID, amount)

		assert.Equal(t, shared.ErrNotFound, err)
		assert.Nil(t, totals)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStudentRepository_InterfaceCompliance(t *testing.T) {
	t.Run("implements StudentRepository interface", func(t *testing.T) {
		repo, _, mockDB := newMockStudentRepository(t)
		defer mockDB.Close()

		var _ billing.StudentRepository = repo
	})
}
