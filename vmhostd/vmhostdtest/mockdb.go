// Package vmhostdtest holds helpers shared by the daemon's package tests.
package vmhostdtest

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewMockDB returns a gorm handle backed by sqlmock. The sqlite version probe gorm runs
// on open is already expected.
func NewMockDB(t *testing.T, testDSN string) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	testDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}

	mock.ExpectQuery("select sqlite_version()").
		WillReturnRows(sqlmock.NewRows([]string{"sqlite_version()"}).AddRow("3.40.1"))

	gormDB, err := gorm.Open(
		&sqlite.Dialector{
			DSN:  testDSN,
			Conn: testDB,
		},
		&gorm.Config{
			DisableAutomaticPing: true,
		},
	)
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening gorm database", err)
	}

	return gormDB, mock
}
