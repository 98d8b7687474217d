// Package database provides SQLite connectivity for the Gray Logic Hub.
//
// The hub keeps no rule state across restarts; SQLite only holds the local
// history of accepted channel values (device.SQLiteValueHistoryRepository).
// The database is optional and disabled with database.enabled: false.
//
// This package manages:
//   - Connection with WAL mode and a busy timeout
//   - Forward/backward schema migrations read from an fs.FS
//   - Health checks
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and
// applied in version order, each in its own transaction.
package database
