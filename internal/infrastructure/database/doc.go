// Package database provides the SQLite store behind MOBAflow.
//
// It opens the database (WAL mode, busy timeout, owner-only permissions)
// and applies the schema migrations embedded by the migrations package.
// The automation repository persists the project definition, execution
// log, journey sessions and trip log on top of it.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
