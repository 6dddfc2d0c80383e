package reminder

import "regexp"

// Schema version 1 of the reminders table. migrations/001_create_reminders.sql
// holds the matching DDL.
const (
	SchemaVersion    = 1
	Table            = "reminders"
	DefaultDueColumn = "due_at"
)

// OptionalColumns may be absent in older deployments. Updates that touch them
// are retried without them.
var OptionalColumns = []string{"sent_at", "last_error"}

// Columns lists every column of the declared schema.
var Columns = []string{"id", "title", "target", "channel", DefaultDueColumn, "status", "attempts", "sent_at", "last_error"}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidColumn reports whether name is safe to use as a column identifier.
func ValidColumn(name string) bool {
	return identRe.MatchString(name)
}

// IsOptional reports whether column may be dropped from an update.
func IsOptional(column string) bool {
	for _, c := range OptionalColumns {
		if c == column {
			return true
		}
	}
	return false
}
