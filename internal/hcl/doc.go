// Package hcl provides the concrete HCL implementation for the configuration
// loading and data conversion interfaces defined in the `config` package.
// It is responsible for all file parsing, HCL-to-model translation, and
// CTY-to-Go data binding.
//
// A kernel description is made of these top-level blocks, spread over any
// number of .hcl files:
//
//	kernel "heat" {
//	  step_dim    = "t"
//	  domain_dims = ["x", "y"]
//	  fold        = { x = 4, y = 1 }
//	  domain_size = { x = 64, y = 64 }
//	}
//
//	var "u" {
//	  dims      = ["t", "x", "y"]
//	  left_halo = { x = 1, y = 1 }
//	}
//
//	bundle "main" {
//	  inputs    = ["u"]
//	  outputs   = ["u"]
//	  step_cond = t % 2 == 0
//	  evaluator "checksum" { weight = 2 }
//	  box {
//	    begin = { x = 0, y = 0 }
//	    end   = { x = 32, y = 64 }
//	  }
//	}
//
//	stage "s0" { bundles = ["main"] }
//
//	settings {
//	  micro_block   = { x = 32, y = 32 }
//	  inner_threads = 2
//	}
package hcl
