// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRunDBMaintenance_WithMock(t *testing.T) {
	cases := []struct {
		name    string
		dbType  string
		expect  func(m sqlmock.Sqlmock)
		wantErr bool
	}{
		{"sqlite success", "sqlite", func(m sqlmock.Sqlmock) {
			m.ExpectExec("PRAGMA optimize").WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectExec("VACUUM").WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectExec("PRAGMA wal_checkpoint\\(").WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectQuery("PRAGMA integrity_check").WillReturnRows(sqlmock.NewRows([]string{"integrity_check"}).AddRow("ok"))
		}, false},
		{"sqlite optimize failure is tolerated, vacuum failure is not", "sqlite", func(m sqlmock.Sqlmock) {
			m.ExpectExec("PRAGMA optimize").WillReturnError(errors.New("optimize fail"))
			m.ExpectExec("VACUUM").WillReturnError(errors.New("vacuum fail"))
		}, true},
		{"sqlite corrupt", "sqlite", func(m sqlmock.Sqlmock) {
			m.ExpectExec("PRAGMA optimize").WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectExec("VACUUM").WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectExec("PRAGMA wal_checkpoint\\(").WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectQuery("PRAGMA integrity_check").WillReturnRows(sqlmock.NewRows([]string{"integrity_check"}).AddRow("page 3 corrupt"))
		}, true},
		{"postgres success", "postgres", func(m sqlmock.Sqlmock) {
			m.ExpectExec("VACUUM ANALYZE").WillReturnResult(sqlmock.NewResult(0, 0))
		}, false},
		{"postgres failure", "postgres", func(m sqlmock.Sqlmock) {
			m.ExpectExec("VACUUM ANALYZE").WillReturnError(errors.New("vacuum fail"))
		}, true},
		{"mysql success", "mysql", func(m sqlmock.Sqlmock) {
			m.ExpectQuery("SHOW TABLES").WillReturnRows(sqlmock.NewRows([]string{"Tables_in_db"}).AddRow("sessions").AddRow("command_logs"))
			m.ExpectExec("OPTIMIZE TABLE sessions").WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectExec("OPTIMIZE TABLE command_logs").WillReturnResult(sqlmock.NewResult(0, 0))
		}, false},
		{"mysql continues past a failing table", "mysql", func(m sqlmock.Sqlmock) {
			m.ExpectQuery("SHOW TABLES").WillReturnRows(sqlmock.NewRows([]string{"Tables_in_db"}).AddRow("sessions").AddRow("command_logs"))
			m.ExpectExec("OPTIMIZE TABLE sessions").WillReturnError(errors.New("optimize fail"))
			m.ExpectExec("OPTIMIZE TABLE command_logs").WillReturnResult(sqlmock.NewResult(0, 0))
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dbMock, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer func() { _ = dbMock.Close() }()

			orig := sqlOpenFunc
			sqlOpenFunc = func(driverName, dsn string) (*sql.DB, error) { return dbMock, nil }
			defer func() { sqlOpenFunc = orig }()

			tc.expect(mock)
			err = RunDBMaintenance(tc.dbType, "dsn")
			if tc.wantErr != (err != nil) {
				t.Fatalf("RunDBMaintenance(%s) err = %v, wantErr %v", tc.dbType, err, tc.wantErr)
			}
			if !tc.wantErr {
				if err := mock.ExpectationsWereMet(); err != nil {
					t.Fatalf("unmet expectations: %v", err)
				}
			}
		})
	}
}

func TestRunDBMaintenance_Unsupported(t *testing.T) {
	dbMock, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	orig := sqlOpenFunc
	sqlOpenFunc = func(driverName, dsn string) (*sql.DB, error) { return dbMock, nil }
	defer func() { sqlOpenFunc = orig }()

	if err := RunDBMaintenance("oracle", "dsn"); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
