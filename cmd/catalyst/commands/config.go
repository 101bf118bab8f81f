package commands

import (
	"github.com/catalyst-network/catalyst/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Catalyst config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Catalyst: *config.NewDefaultConfig(),
	}
}
