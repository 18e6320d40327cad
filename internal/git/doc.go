// Package git wraps the go-git operations the build needs on the Chromium
// checkout: resolving HEAD and initialising submodules in place.
package git
