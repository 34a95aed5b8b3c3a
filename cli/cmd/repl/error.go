package repl

import "github.com/ardnew/quill/lang"

// Sentinel errors.
var (
	ErrQuit    = lang.NewError("quit")
	ErrCommand = lang.NewError("unknown command")
	ErrNoFile  = lang.NewError("no component loaded")
)
