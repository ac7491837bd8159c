// Package board owns the ordered storyboard collection. It composes the
// pure scene operations with asset handle release and persists the
// collection to SQLite so a restarted daemon can restore its board.
package board
