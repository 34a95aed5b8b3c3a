package cmd

import "github.com/ardnew/quill/lang"

// Sentinel errors of the commands.
var (
	ErrSource      = lang.NewError("no component source")
	ErrVariable    = lang.NewError("invalid variable assignment")
	ErrReadVars    = lang.NewError("read variables file")
	ErrYAMLMarshal = lang.NewError("marshal YAML")
	ErrWriteConfig = lang.NewError("write configuration file")
	ErrFileExists  = lang.NewError("file exists (use --force to overwrite)")
	ErrWriteOutput = lang.NewError("write generated source")
	ErrCheck       = lang.NewError("components have errors")
)
