package collab

import "context"

// DomainSubstituter rewrites Google domains in the source tree with the
// ungoogled-chromium substitution utility.
type DomainSubstituter struct {
	Utils Utils
}

// Apply substitutes the domains of regexList in the files of fileList under tree.
func (d DomainSubstituter) Apply(ctx context.Context, env []string, regexList, fileList, tree string) error {
	return d.Utils.Python.Run(ctx, "", env, d.Utils.script("domain_substitution.py"),
		"apply", "-r", regexList, "-f", fileList, tree)
}
