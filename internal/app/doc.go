// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary execution lifecycle: load the
// kernel description, build the kernel, report its work statistics and run
// it, decoupled from any specific entrypoint like a CLI or server.
package app
