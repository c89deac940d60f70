// Package kernel turns a format-agnostic kernel description into the
// runtime objects the engine works on: the dims, the rank-local variables,
// the resolved bundle set, the stages and the execution settings.
//
// Everything is validated here. A Kernel that builds without error can be
// handed to the driver as is.
package kernel
