package storage

import (
	"database/sql/driver"
	"strings"

	"modernc.org/sqlite"
)

// FoldFunc is the SQL name of the Unicode-aware lower-casing function
// registered on every connection. SQLite's own lower() only folds A-Z.
const FoldFunc = "fold"

// Fold lower-cases s the same way the registered SQL function does, so
// query terms and stored names compare equal.
func Fold(s string) string { return strings.ToLower(s) }

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(FoldFunc, 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return Fold(v), nil
		case []byte:
			return Fold(string(v)), nil
		default:
			return v, nil
		}
	})
}
