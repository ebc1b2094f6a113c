// Package history records which episodes crdl has already downloaded.
//
// The store is a single SQLite database under the configured state directory.
// The download pipeline consults it to skip completed episodes and the history
// command lists it. Each episode keeps one row; re-downloading updates the row
// and bumps its attempt counter.
package history
