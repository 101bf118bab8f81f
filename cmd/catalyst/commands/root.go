package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for Catalyst
var RootCmd = &cobra.Command{
	Use:              "catalyst",
	Short:            "catalyst peer-to-peer node",
	TraverseChildren: true,
}
