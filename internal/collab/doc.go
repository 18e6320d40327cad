// Package collab drives the tools the Chromium build delegates to: the
// ungoogled-chromium utility scripts, patch, GN, ninja and the packager,
// plus the small downloads and file fix-ups done in-process.
//
// Every collaborator that starts a process takes a process.Runner so tests
// can substitute a recording fake.
package collab
