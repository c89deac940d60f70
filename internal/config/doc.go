// Package config defines the format-agnostic model of a kernel description,
// along with the core interfaces (Loader, Converter) for loading and
// interpreting it from various sources.
//
// The `config.Model` is the single source of truth for the `kernel`
// package, which turns it into dims, variables, bundles and stages.
// Concrete implementations of the interfaces, such as for HCL, are provided
// in separate packages.
package config
