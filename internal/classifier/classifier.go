// Package classifier invokes the external land-cover model runner on a
// composed raster. The runner is an opaque executable; this package only
// shapes its invocation and locates its output.
package classifier

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/geoguardian/landcover-monitor-poc/internal/config"
)

// ClassifiedPrefix marks a raster that already went through the model.
const ClassifiedPrefix = "Clssif_"

// Labels maps the model's class codes to land-cover names.
var Labels = map[int]string{
	0:  "other",
	10: "grassland",
	20: "perennial_crop",
	30: "temporary_crop",
	40: "forest",
	50: "water",
	60: "anthropic",
}

// Classifier produces a classified raster from a composed one.
type Classifier interface {
	Classify(ctx context.Context, inputRaster string) (string, error)
}

// ExecClassifier shells out to the configured model runner.
type ExecClassifier struct {
	cfg config.ClassifierConfig
	// run is swapped in tests.
	run func(cmd *exec.Cmd) error
}

func NewExecClassifier(cfg config.ClassifierConfig) *ExecClassifier {
	return &ExecClassifier{
		cfg: cfg,
		run: func(cmd *exec.Cmd) error { return cmd.Run() },
	}
}

// Classify runs the model on inputRaster and returns the classified
// output path. A raster already carrying the classified prefix, or whose
// output already exists, is returned as-is.
func (c *ExecClassifier) Classify(ctx context.Context, inputRaster string) (string, error) {
	base := filepath.Base(inputRaster)
	if strings.HasPrefix(base, ClassifiedPrefix) {
		return inputRaster, nil
	}

	output := filepath.Join(filepath.Dir(inputRaster), ClassifiedPrefix+base)
	if _, err := os.Stat(output); err == nil {
		return output, nil
	}

	if c.cfg.ModelPath == "" {
		return "", fmt.Errorf("classifier model path is not configured")
	}

	cmd := exec.CommandContext(ctx, c.cfg.Runner,
		"--input", inputRaster,
		"--model", c.cfg.ModelPath,
		"--arguments", c.cfg.Arguments,
		"--processor", c.cfg.ProcessorType,
		"--cores", strconv.Itoa(c.cfg.Cores),
		"--output", output,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := c.run(cmd); err != nil {
		return "", fmt.Errorf("model runner failed on %s: %w", inputRaster, err)
	}

	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("model runner exited cleanly but produced no output at %s", output)
	}
	return output, nil
}
