// Package sqlite persists overlay sessions and finished tracks.
//
// Tables are created by the migrations in internal/db; this package only
// reads and writes rows. The tracker core never imports it: the recorder
// adapts the tracker's removal hook to the store.
package sqlite
