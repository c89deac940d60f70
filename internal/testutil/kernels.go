package testutil

// HeatKernelHCL is a 16x8 kernel with one bundle that counts the points it
// evaluates. Each step covers HeatKernelPoints points.
const HeatKernelHCL = `
kernel "heat" {
  step_dim    = "t"
  domain_dims = ["x", "y"]
  fold        = { x = 4, y = 1 }
  domain_size = { x = 16, y = 8 }
}

var "u" {
  dims       = ["t", "x", "y"]
  left_halo  = { x = 1, y = 1 }
  right_halo = { x = 1, y = 1 }
}

bundle "main" {
  inputs           = ["u"]
  outputs          = ["u"]
  reads_per_point  = 5
  writes_per_point = 1
  fp_ops_per_point = 9

  evaluator "count_points" {}
}

settings {
  micro_block = { x = 8, y = 4 }
}
`

const HeatKernelPoints = 16 * 8
