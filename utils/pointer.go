// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

// Ptr returns a pointer to v. Useful for the optional string fields on
// wire and storage records.
func Ptr[T any](v T) *T {
	return &v
}
