// Package refcc is the reference compiler backend.
//
// refcc is deterministic and pure Go. It does not generate machine code; it
// preprocesses, validates and packages its inputs the way a real device
// compiler would, so the build coordinator, the binary codec and the CLI can
// be exercised end to end.
//
// # Text dialect
//
//   - #include "name" (or <name>) is resolved against the compile headers
//   - #error msg fails the compile; #warning msg warns (fails with -Werror)
//   - #pragma require ext fails on devices lacking the extension
//   - kernels are discovered from "__kernel void name(" and "kernel void name("
//
// # IR
//
// IR modules are CUE documents:
//
//	kernels: ["scale", "offset"]
//	spec_constants: {
//		"1": {size: 4, default: 0}
//	}
//
// # Options
//
// -D, -I, -cl-std=, -w, -Werror, -create-library and -enable-link-options
// are accepted; any other dash-prefixed token is an error.
package refcc
