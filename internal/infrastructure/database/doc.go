// Package database provides the SQLite store behind the RF bridge: the
// discovered-device log and anything else that must survive a restart.
//
// The connection runs in WAL mode with a single writer connection and a
// busy timeout. Schema changes are versioned migrations embedded in the
// binary (see the migrations package) and applied at startup:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or defaulted, and each
// .up.sql ships with a .down.sql.
package database
