// Package program implements the program object and its build coordinator.
//
// A Program holds exactly one source representation (text, IL or per-device
// binaries), the devices it is associated with, and one build record per
// device. Build, Compile and Link drive those records through the
// NONE -> ERROR | SUCCESS state machine by invoking the Context's backend
// compiler once per targeted device.
//
// Thread-safety model:
//   - Queries are safe from any goroutine and never block on a running build.
//   - Build, Compile and Link hold a per-device lock for every targeted
//     device, so two operations on the same program and device serialize.
//   - Reference counts are atomic; the last Release destroys the object.
package program
