package domain

import "strings"

// NormalizeCode upper-cases and trims a scanned code (SKU or serial number).
// Every comparison, equality check, and storage write goes through this one
// function so the client and server can never disagree on casing.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeID trims an opaque identifier (box ids, operator names) without
// changing its case.
func NormalizeID(s string) string {
	return strings.TrimSpace(s)
}
