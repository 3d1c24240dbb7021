// Package mysql opens the shared MySQL connection pool and applies the
// embedded schema migrations for the approval journal and the dispatch
// request table.
package mysql
