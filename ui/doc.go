// Package ui provides the embedded web UI of tableadmin.
//
// UIHandler serves everything from one http.Handler:
//   - server rendered pages (login, table lists, row forms, custom forms)
//   - the JSON API under /api, see package api
//   - POST /auth/login, /auth/logout and /auth/token
//   - uploaded files of local media storages under /media/{table}/{column}/{key}
//
// # Quick Start
//
//	db, _ := sql.Open("pgx", os.Getenv("DATABASE_URL"))
//	admin, err := tableadmin.New(ctx, databasesql.New(db, driver.Postgres), tableadmin.Config{},
//	    &tableadmin.TableConfig{Name: "movie"},
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := admin.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := http.NewServeMux()
//	mux.Handle("/admin/", http.StripPrefix("/admin", ui.UIHandler(admin, &ui.Config{BasePath: "/admin"})))
//	http.ListenAndServe(":8080", mux)
//
// # Framework Integration
//
// The handler returns standard http.Handler, compatible with any Go framework:
//
//	// Chi
//	r.Mount("/admin", ui.UIHandler(admin, cfg))
//
//	// Gin
//	router.Any("/admin/*any", gin.WrapH(http.StripPrefix("/admin", ui.UIHandler(admin, cfg))))
package ui
