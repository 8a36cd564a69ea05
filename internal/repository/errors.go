package repository

import "strings"

// isUniqueViolation matches unique constraint errors from both SQLite and PostgreSQL.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// violates reports whether a unique violation names column.
// SQLite reports "table.column", PostgreSQL reports the "table_column_key" constraint.
func violates(err error, table, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, table+"."+column) || strings.Contains(msg, table+"_"+column+"_key")
}
