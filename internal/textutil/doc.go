// Package textutil sanitizes provider-supplied titles before they become file
// and directory names.
package textutil
