package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/tsarna/kiwibus/pkg/kiwibus/token"
)

type TokenDefinition struct {
	Value           string            `hcl:"value,optional"`
	BaseURL         string            `hcl:"base_url,optional"`
	RefreshPath     string            `hcl:"refresh_path,optional"`
	RefreshSchedule string            `hcl:"refresh_schedule,optional"`
	RefreshTimeout  hcl.Expression    `hcl:"refresh_timeout,optional"`
	Headers         map[string]string `hcl:"headers,optional"`
	DefRange        hcl.Range         `hcl:",def_range"`
}

type TokenBlockHandler struct {
	BlockHandlerBase
	seen duplicateChecker
}

func NewTokenBlockHandler() *TokenBlockHandler {
	return &TokenBlockHandler{seen: newDuplicateChecker(hcl.DiagError)}
}

func (h *TokenBlockHandler) Preprocess(block *hcl.Block) hcl.Diagnostics {
	return h.seen.check(block, "token")
}

func (h *TokenBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	tokenDef := TokenDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &tokenDef)
	if diags.HasErrors() {
		return diags
	}

	store := config.Token.
		WithBaseURL(tokenDef.BaseURL).
		WithRefreshPath(tokenDef.RefreshPath)
	for key, value := range tokenDef.Headers {
		store.WithHeader(key, value)
	}
	store.Set(tokenDef.Value)

	if tokenDef.RefreshSchedule == "" {
		return diags
	}

	timeout := 30 * time.Second
	diags = diags.Extend(config.optionalDuration(tokenDef.RefreshTimeout, &timeout))
	if diags.HasErrors() {
		return diags
	}

	scheduler, err := token.NewScheduler(store, tokenDef.RefreshSchedule, config.Logger)
	if err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid refresh schedule",
			Detail:   err.Error(),
			Subject:  &tokenDef.DefRange,
		})
	}

	config.Scheduler = scheduler.WithTimeout(timeout)
	config.Startables = append(config.Startables, NewErrorlessStartable(scheduler))

	return diags
}
