package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var depCols = []string{"id", "name", "dependency", "gmt_create"}

func TestDependencyAdd_Inserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDependencyRepository(db)
	mock.ExpectQuery(`FROM module_deps WHERE name = \$1 AND dependency = \$2`).
		WithArgs("app", "lib").
		WillReturnRows(sqlmock.NewRows(depCols))
	mock.ExpectQuery(`INSERT INTO module_deps .* ON CONFLICT \(name, dependency\) DO NOTHING`).
		WithArgs("app", "lib", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(depCols).AddRow(int64(1), "app", "lib", time.Now()))

	d, err := repo.Add(context.Background(), "app", "lib")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d == nil || d.ID != 1 {
		t.Errorf("dependency = %+v", d)
	}
}

func TestDependencyAdd_ExistingEdgeReturnedUnchanged(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDependencyRepository(db)
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM module_deps WHERE name`).
		WillReturnRows(sqlmock.NewRows(depCols).AddRow(int64(7), "app", "lib", created))

	d, err := repo.Add(context.Background(), "app", "lib")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID != 7 || !d.GmtCreate.Equal(created) {
		t.Errorf("dependency = %+v", d)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDependencyAdd_LostRaceReadsWinner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDependencyRepository(db)
	mock.ExpectQuery(`FROM module_deps WHERE name`).WillReturnRows(sqlmock.NewRows(depCols))
	mock.ExpectQuery(`INSERT INTO module_deps`).WillReturnRows(sqlmock.NewRows(depCols))
	mock.ExpectQuery(`FROM module_deps WHERE name`).
		WillReturnRows(sqlmock.NewRows(depCols).AddRow(int64(8), "app", "lib", time.Now()))

	d, err := repo.Add(context.Background(), "app", "lib")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d == nil || d.ID != 8 {
		t.Errorf("dependency = %+v", d)
	}
}

func TestDependencyAddBatch_ReturnsFirstError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDependencyRepository(db)
	repo.batchConcurrency = 1
	mock.ExpectQuery(`FROM module_deps WHERE name`).
		WillReturnRows(sqlmock.NewRows(depCols).AddRow(int64(1), "app", "a", time.Now()))
	mock.ExpectQuery(`FROM module_deps WHERE name`).WillReturnError(errDB)

	_, err := repo.AddBatch(context.Background(), "app", []string{"a", "b"})
	if !errors.Is(err, errDB) {
		t.Errorf("error = %v, want errDB", err)
	}
}

func TestDependencyAddBatch_AllSucceed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDependencyRepository(db)
	repo.batchConcurrency = 1
	mock.ExpectQuery(`FROM module_deps WHERE name`).
		WillReturnRows(sqlmock.NewRows(depCols).AddRow(int64(1), "app", "a", time.Now()))
	mock.ExpectQuery(`FROM module_deps WHERE name`).
		WillReturnRows(sqlmock.NewRows(depCols).AddRow(int64(2), "app", "b", time.Now()))

	deps, err := repo.AddBatch(context.Background(), "app", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deps) != 2 || deps[0].Dependency != "a" || deps[1].Dependency != "b" {
		t.Errorf("deps = %+v", deps)
	}
}

func TestDependencyListDependents(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDependencyRepository(db)
	mock.ExpectQuery(`SELECT name FROM module_deps WHERE dependency = \$1`).
		WithArgs("lib").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("app1").AddRow("app2"))

	names, err := repo.ListDependents(context.Background(), "lib")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("names = %v", names)
	}
}

func TestDependencyListDependencies_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDependencyRepository(db)
	mock.ExpectQuery(`SELECT dependency FROM module_deps`).WillReturnError(errDB)

	if _, err := repo.ListDependencies(context.Background(), "app"); !errors.Is(err, errDB) {
		t.Errorf("error = %v, want errDB", err)
	}
}
