// Package tui implements the live watch view.
//
// The bubbletea event loop doubles as the registry's coordinator: a
// [ProgramDispatcher] turns Post calls into messages for the program, and the
// model runs them from Update. Completion reactions therefore run on the same
// goroutine that renders, and the model's counters need no locking.
package tui
