package catalog

import "strings"

// Fold normalizes an identifier for lookup purposes: table and column names
// are matched case-insensitively throughout, folded to lowercase, while the
// originally declared spelling is retained separately for result-set output.
// Adapted from the teacher's NormalizeIdentifierName, simplified to this
// engine's single always-fold-unquoted rule (spec §4.1).
func Fold(name string) string {
	return strings.ToLower(name)
}
