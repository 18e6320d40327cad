// Package build defines the Windows cross build: the ordered steps, the
// environment each step hands on, and the service that runs them through
// the resumable pipeline.
//
// All execution paths (the build command and tests) route through
// BuildService. The toolchain command shares the network wiring in Tools.
package build
