package raster

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Output name prefixes of the composition chain. The stretched name is
// also the cache key the orchestrator checks before re-acquiring a
// window, so it must stay stable across runs.
const (
	MosaicPrefix  = "Mos_"
	MaskPrefix    = "Msk_"
	StretchPrefix = "Stch_"
)

// FinalName is the filename of a fully composed window product.
func FinalName(label string) string {
	return StretchPrefix + MaskPrefix + MosaicPrefix + label + ".tif"
}

// Pipeline chains mosaic, mask and stretch into a single window product.
type Pipeline struct {
	Engine              Engine
	Logger              *slog.Logger
	DeleteIntermediates bool
}

func NewPipeline(engine Engine, logger *slog.Logger, deleteIntermediates bool) *Pipeline {
	return &Pipeline{Engine: engine, Logger: logger, DeleteIntermediates: deleteIntermediates}
}

// Compose mosaics inputs, masks the mosaic with the cutline and stretches
// the result, writing every product under dir. Steps whose output already
// exists are skipped, so an interrupted run resumes where it stopped.
func (p *Pipeline) Compose(inputs []string, dir, label, cutline string) (string, error) {
	mosaic, err := p.mosaicStep(inputs, dir, label)
	if err != nil {
		return "", err
	}
	masked, err := p.step("mask", mosaic, filepath.Join(dir, MaskPrefix+MosaicPrefix+label+".tif"), func(in, out string) error {
		return p.Engine.Mask(in, cutline, out)
	})
	if err != nil {
		return "", err
	}
	stretched, err := p.step("stretch", masked, filepath.Join(dir, FinalName(label)), p.Engine.Stretch)
	if err != nil {
		return "", err
	}
	return stretched, nil
}

func (p *Pipeline) mosaicStep(inputs []string, dir, label string) (string, error) {
	if len(inputs) == 0 {
		return "", fmt.Errorf("no inputs to compose for %s", label)
	}
	if len(inputs) == 1 {
		// A single scene already is the mosaic. Keep the scene file so a
		// later window can reuse it.
		return inputs[0], nil
	}
	output := filepath.Join(dir, MosaicPrefix+label+".tif")
	if _, err := os.Stat(output); err == nil {
		p.Logger.Info("mosaic already exists, skipping", "path", output)
		return output, nil
	}
	p.Logger.Info("mosaicking scenes", "count", len(inputs), "output", output)
	if err := p.Engine.Mosaic(inputs, output); err != nil {
		return "", fmt.Errorf("failed to mosaic %s: %w", label, err)
	}
	if p.DeleteIntermediates {
		for _, input := range inputs {
			if err := os.Remove(input); err != nil {
				p.Logger.Warn("failed to remove intermediate", "path", input, "error", err)
			}
		}
	}
	return output, nil
}

func (p *Pipeline) step(name, input, output string, fn func(in, out string) error) (string, error) {
	if _, err := os.Stat(output); err == nil {
		p.Logger.Info(name+" output already exists, skipping", "path", output)
		return output, nil
	}
	p.Logger.Info("running "+name, "input", input, "output", output)
	if err := fn(input, output); err != nil {
		return "", fmt.Errorf("failed to %s %s: %w", name, input, err)
	}
	if p.DeleteIntermediates && input != output && filepath.Base(input) != filepath.Base(output) {
		// Scene files feeding a single-input chain keep their name through
		// the mosaic step; only true intermediates are removed.
		if isIntermediate(input) {
			if err := os.Remove(input); err != nil {
				p.Logger.Warn("failed to remove intermediate", "path", input, "error", err)
			}
		}
	}
	return output, nil
}

func isIntermediate(path string) bool {
	base := filepath.Base(path)
	return len(base) > len(MosaicPrefix) && (base[:len(MosaicPrefix)] == MosaicPrefix ||
		base[:len(MaskPrefix)] == MaskPrefix)
}
