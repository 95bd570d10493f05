package common

// ValeVersion is the current version of the backend as a string.
const ValeVersion = "0.1.0"

// ProfileFileName is the default name of a build profile file.
const ProfileFileName = "vale-build.toml"

// MainFunctionName is the IR name of the program's entry function.
const MainFunctionName = "main"

// ProgramSymbolPrefix is prepended to the name of every function defined by
// the program so that none of them collide with runtime symbols or with the
// process entry function.
const ProgramSymbolPrefix = "vale."

// Enumeration of process exit codes.
const (
	ExitSuccess = iota
	ExitBadOpts
	ExitLLVMSetupFailed
	ExitVerifyFailed
	ExitBadInput
	ExitInternalError
	ExitEmitFailed
)
