// Package workspace lays out the directories of a build: the fixed tree under
// the project root (source, download cache, state markers, output) and
// short-lived scratch directories removed once a step is done with them.
package workspace
