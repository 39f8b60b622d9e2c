package commands

import (
	"fmt"

	"git.home.luguber.info/inful/assetpipe/internal/version"
)

// VersionCmd prints build metadata.
type VersionCmd struct{}

func (VersionCmd) Run(_ *Global, _ *CLI) error {
	fmt.Println(version.String())
	return nil
}
