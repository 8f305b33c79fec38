package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

func TestSupervisorCreateMapsDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO supervisors").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	repo := NewSupervisorRepo(db)
	_, err = repo.Create(context.Background(), "ana@indiehoy.com", "secret", "SUPERVISOR", 4)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Create() = %v, want ErrConflict", err)
	}
}

func TestSupervisorCreatePassesThroughOtherErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO supervisors").
		WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout"})

	repo := NewSupervisorRepo(db)
	_, err = repo.Create(context.Background(), "ana@indiehoy.com", "secret", "SUPERVISOR", 4)
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != 1205 {
		t.Fatalf("Create() = %v, want the driver error untouched", err)
	}
}
