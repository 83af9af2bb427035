package config

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// FileExtension is the suffix of config files picked up from directories.
const FileExtension = ".hcl"

// GetBlocks returns the top-level blocks of bodies. Anything that is not a
// client, mock or token block is an error.
func (cb *ConfigBuilder) GetBlocks(bodies []hcl.Body) (hcl.Blocks, hcl.Diagnostics) {
	var blocks hcl.Blocks
	var diags hcl.Diagnostics

	for _, body := range bodies {
		content, contentDiags := body.Content(configSchema)
		diags = diags.Extend(contentDiags)
		if content != nil {
			blocks = append(blocks, content.Blocks...)
		}
	}

	return blocks, diags
}

// ParseConfigFiles parses sources into HCL bodies. A source is a path to a
// file or a directory, HCL text as []byte, or an fs.FS such as an embed.FS.
// Directories and file systems contribute every *.hcl file below them, in
// lexical order.
func ParseConfigFiles(sources ...any) ([]hcl.Body, hcl.Diagnostics) {
	p := &sourceParser{parser: hclparse.NewParser()}

	for _, source := range sources {
		switch v := source.(type) {
		case string:
			p.parsePath(v)
		case []byte:
			p.parse(v, fmt.Sprintf("<bytes@%p>", v))
		case fs.FS:
			p.parseTree(v, "")
		default:
			p.fail("Invalid source type", fmt.Sprintf("Invalid source type: %T", v))
		}
	}

	return p.bodies, p.diags
}

type sourceParser struct {
	parser *hclparse.Parser
	bodies []hcl.Body
	diags  hcl.Diagnostics
}

func (p *sourceParser) fail(summary, detail string) {
	p.diags = p.diags.Append(&hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   detail,
	})
}

// parse adds the body of src, reporting positions against filename.
func (p *sourceParser) parse(src []byte, filename string) {
	file, diags := p.parser.ParseHCL(src, filename)
	p.diags = p.diags.Extend(diags)
	if file != nil {
		p.bodies = append(p.bodies, file.Body)
	}
}

func (p *sourceParser) parsePath(name string) {
	info, err := os.Stat(name)
	if err != nil {
		p.fail("Config source not found", fmt.Sprintf("Cannot read %s: %s", name, err))
		return
	}

	if info.IsDir() {
		p.parseTree(os.DirFS(name), name)
		return
	}

	src, err := os.ReadFile(name)
	if err != nil {
		p.fail("Failed to read file", fmt.Sprintf("Error reading %s: %s", name, err))
		return
	}
	p.parse(src, name)
}

// parseTree parses the config files of fsys. Diagnostics name files relative
// to root, which is empty for file systems that are not on disk.
func (p *sourceParser) parseTree(fsys fs.FS, root string) {
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		display := name
		if root != "" {
			display = filepath.Join(root, filepath.FromSlash(name))
		}

		if err != nil {
			p.fail("Failed to access file or directory", fmt.Sprintf("Error accessing %s: %s", display, err))
			return nil
		}
		if d.IsDir() || path.Ext(name) != FileExtension {
			return nil
		}

		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			p.fail("Failed to read file", fmt.Sprintf("Error reading %s: %s", display, err))
			return nil
		}
		p.parse(src, display)
		return nil
	})

	if err != nil {
		p.fail("Failed to walk directory", fmt.Sprintf("Error walking %s: %s", root, err))
	}
}
