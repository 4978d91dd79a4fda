// Package database opens the SQLite file that backs the print job history.
//
// The connection runs in WAL mode with foreign keys on and a busy timeout, so
// the HTTP handlers and the session recorder can share it. Migrate applies the
// embedded *.up.sql files in name order and records each in
// schema_migrations; a file that has been applied is never run again.
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
