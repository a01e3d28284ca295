// Package crud implements list, read, create, update, delete and export
// operations over tables described by the schema package.
//
// Queries are built per dialect so the same tables can be served from
// PostgreSQL (pgx or database/sql) and SQLite. Rows are exchanged as
// column-name keyed maps whose values are normalized to JSON friendly Go
// values: integers as int64, numerics as float64, booleans as bool, dates
// as "2006-01-02" strings and timestamps as time.Time.
//
// List filters follow the query string conventions of the admin API:
//
//	name=alien                 text columns match with "contains" by default
//	name__match=starts         contains, exact, starts or ends
//	rating=90&rating__operator=gte
//	director_id=1&director_id=2
//	__order=-rating,name
//	__page=2&__page_size=50
//	__visible_fields=id,name
//	__readable=true            adds <fk>_readable values
package crud
