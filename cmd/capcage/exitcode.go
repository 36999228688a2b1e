package main

// Exit codes, grounded on original_source/src/exit_code.rs: distinct codes
// for "clean", "problems found", and "internal error" so scripts calling
// capcage can tell a policy violation from a crash without parsing stderr.
const (
	exitCodeClean         = 0
	exitCodeProblemsFound = 1
	exitCodeInternalError = 2
	exitCodeInterrupted   = 130
)
