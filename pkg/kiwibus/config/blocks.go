package config

import "github.com/hashicorp/hcl/v2"

type BlockHandler interface {
	Preprocess(block *hcl.Block) hcl.Diagnostics
	Process(config *Config, block *hcl.Block) hcl.Diagnostics
	FinishProcessing(config *Config) hcl.Diagnostics
}

type BlockHandlerBase struct {
}

func (b *BlockHandlerBase) Preprocess(block *hcl.Block) hcl.Diagnostics {
	return nil
}

func (b *BlockHandlerBase) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	return nil
}

func (b *BlockHandlerBase) FinishProcessing(config *Config) hcl.Diagnostics {
	return nil
}

// blockOrder is the order block types are processed in.
var blockOrder = []string{"token", "mock", "client"}

func GetBlockHandlers() map[string]BlockHandler {
	return map[string]BlockHandler{
		"client": NewClientBlockHandler(),
		"mock":   NewMockBlockHandler(),
		"token":  NewTokenBlockHandler(),
	}
}

// duplicateChecker reports blocks that reuse a label seen before.
type duplicateChecker struct {
	seen     map[string]*hcl.Block
	severity hcl.DiagnosticSeverity
}

func newDuplicateChecker(severity hcl.DiagnosticSeverity) duplicateChecker {
	return duplicateChecker{seen: make(map[string]*hcl.Block), severity: severity}
}

func (d duplicateChecker) check(block *hcl.Block, key string) hcl.Diagnostics {
	if previous, ok := d.seen[key]; ok {
		return hcl.Diagnostics{&hcl.Diagnostic{
			Severity: d.severity,
			Summary:  "Duplicate " + block.Type + " block",
			Detail:   "A " + block.Type + " block named " + key + " was already defined at " + previous.DefRange.String(),
			Subject:  &block.DefRange,
		}}
	}
	d.seen[key] = block
	return nil
}
