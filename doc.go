// Package tableadmin generates an administrative web interface for SQL
// database tables.
//
// Given a set of declared or introspected tables, an Admin exposes a CRUD
// JSON API and a server-rendered admin front end (see package ui) with
// authentication, CSV export, media uploads, custom forms and translated UI
// strings.
//
// # Key Features
//
//   - PostgreSQL (pgx/v5 or database/sql) and SQLite backends
//   - Table introspection, with related tables included on demand
//   - Filtering, ordering and pagination of rows
//   - Foreign keys shown through configurable readable representations
//   - Delete previews following ON DELETE CASCADE references
//   - Media columns backed by the local filesystem or S3 compatible storage
//   - Session and bearer token authentication with CSRF protection
//   - Custom forms and table actions
//
// # Quick Start
//
//	pool, _ := pgxpool.New(ctx, connString)
//	drv := pgxv5.New(pool)
//
//	admin, err := tableadmin.New(ctx, drv, tableadmin.Config{
//	    SiteName:           "Movie Admin",
//	    AutoIncludeRelated: true,
//	},
//	    &tableadmin.TableConfig{
//	        Name:            "movie",
//	        VisibleColumns:  []string{"name", "rating", "director_id"},
//	        RichTextColumns: []string{"description"},
//	        MenuGroup:       "Catalog",
//	    },
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := admin.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	handler := ui.UIHandler(admin, nil)
//	http.ListenAndServe(":8000", handler)
//
// # Tables
//
// A TableConfig either carries a schema.Table definition or the name of a
// table to introspect. Resolve validates it and fills in defaults: the
// visible columns and filters, the link column, the default ordering and the
// media columns. Tables may also be registered at init time with Register
// and are then picked up by New when no tables are passed.
//
// # Hooks and Actions
//
// Hooks and actions run inside the transaction of their operation. The
// native transaction is available through TxFromContext:
//
//	tx := tableadmin.TxFromContext(ctx, drv)
package tableadmin
