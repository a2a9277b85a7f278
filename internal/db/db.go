package db

import (
	"fmt"

	"bookmail/internal/catalog"
	"bookmail/internal/schedule"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&catalog.User{},
		&catalog.Book{},
		&catalog.Lesson{},
		&catalog.UserBook{},
		&schedule.DeliveryLog{},
		&schedule.RunRecord{},
	); err != nil {
		return err
	}

	// Day numbers are unique per book; duplicates would desynchronize
	// progress counters.
	if err := gdb.Exec(`create unique index if not exists uq_lessons_book_day on lessons(book_id, day_number);`).Error; err != nil {
		return err
	}

	// One assignment per (user, book).
	if err := gdb.Exec(`create unique index if not exists uq_user_books_user_book on user_books(user_id, book_id);`).Error; err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_user_books_status on user_books(status);`,
		`create index if not exists idx_logs_run on delivery_logs(schedule_run_id);`,
		`create index if not exists idx_logs_status_sent_at on delivery_logs(status, sent_at desc);`,
		`create index if not exists idx_runs_started on scheduler_runs(started_at desc);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
