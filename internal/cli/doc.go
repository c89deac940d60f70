// Package cli turns command-line flags into an app.Config. It validates
// what the flags alone can tell and reports bad input as an ExitError
// carrying the process exit code.
package cli
