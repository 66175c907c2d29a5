package db

import (
	"strings"

	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique constraint failure. When
// constraintName is given the Postgres constraint (or sqlite column list) must
// mention it.
func IsUniqueViolation(err error, constraintName string) bool {
	if !pkgerrors.IsUniqueViolation(err) {
		return false
	}
	if constraintName == "" {
		return true
	}
	if d := pkgerrors.Dump(err); d.PGConstraint != "" {
		return d.PGConstraint == constraintName
	}
	return strings.Contains(err.Error(), constraintName)
}
