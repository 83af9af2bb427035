package config

import (
	"github.com/hashicorp/hcl/v2"
)

var blockSchema = []hcl.BlockHeaderSchema{
	{
		Type:       "client",
		LabelNames: []string{"name"},
	},
	{
		Type:       "mock",
		LabelNames: []string{"key"},
	},
	{
		Type:       "token",
		LabelNames: []string{},
	},
}

var configSchema = &hcl.BodySchema{
	Blocks: blockSchema,
}
