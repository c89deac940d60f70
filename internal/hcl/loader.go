package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/stencilgo/internal/config"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	converter *Converter
}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{converter: NewConverter()}
}

// Load orchestrates the entire HCL configuration loading process. It is
// agnostic to the origin of the paths and parses any valid block from any
// file. Exactly one kernel block must be present across all files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	if len(hclFiles) == 0 {
		return nil, nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	model := &config.Model{}

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		src := hclFile.Bytes
		for _, k := range root.Kernels {
			if model.Kernel != nil {
				return nil, nil, fmt.Errorf("%s: kernel %q: only one kernel block is allowed, found %q already", file, k.Name, model.Kernel.Name)
			}
			if model.Kernel, err = l.translateKernel(ctx, k); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", file, err)
			}
		}
		for _, v := range root.Vars {
			def, err := l.translateVar(ctx, v)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Vars = append(model.Vars, def)
		}
		for _, b := range root.Bundles {
			def, err := l.translateBundle(ctx, b, src)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Bundles = append(model.Bundles, def)
		}
		for _, s := range root.Stages {
			model.Stages = append(model.Stages, &config.Stage{Name: s.Name, Bundles: s.Bundles})
		}
		for _, s := range root.Settings {
			if model.Settings != nil {
				return nil, nil, fmt.Errorf("%s: only one settings block is allowed", file)
			}
			if model.Settings, err = l.translateSettings(ctx, s); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", file, err)
			}
		}
	}

	if model.Kernel == nil {
		return nil, nil, fmt.Errorf("no kernel block found in %v", paths)
	}
	if model.Settings == nil {
		model.Settings = &config.Settings{}
	}

	logger.Debug("HCL loading complete.",
		"kernel", model.Kernel.Name,
		"vars", len(model.Vars),
		"bundles", len(model.Bundles),
		"stages", len(model.Stages),
	)
	return model, l.converter, nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl
// files found, each once, in walk order.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // It's not an error if a configured path doesn't exist.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			files, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				add(f)
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		}
	}
	return allFiles, nil
}
