package commands

import (
	"fmt"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// DigestCmd implements the 'digest' command.
type DigestCmd struct {
	File      string `arg:"" help:"File to hash" type:"existingfile"`
	Algorithm string `short:"a" default:"sha256" enum:"sha1,sha256,sha512,blake3" help:"Digest algorithm (sha1, sha256, sha512, blake3)"`
	Verify    string `help:"Expected digest, optionally prefixed with the algorithm (sha512:...)"`
}

func (d *DigestCmd) Run(g *Global, _ *CLI) error {
	alg, err := checksum.ParseAlgorithm(d.Algorithm)
	if err != nil {
		return err
	}
	var expected checksum.Expected
	if d.Verify != "" {
		if expected, err = checksum.ParseDigest(d.Verify, alg); err != nil {
			return err
		}
		alg = expected.Algorithm
	}

	actual, err := checksum.Digest(d.File, alg)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.Out, "%s  %s\n", actual, d.File)
	if !expected.IsZero() && !checksum.Equal(expected.Hex, actual) {
		return ferrors.ChecksumMismatch(d.File, string(alg), expected.Hex, actual)
	}
	return nil
}
