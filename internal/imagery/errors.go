package imagery

import (
	"fmt"
	"strings"
)

// MissingCredentialsError indicates the provider cannot authenticate
// because required credential fields are absent. Misconfiguration, never
// retried.
type MissingCredentialsError struct {
	Provider string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing credentials for provider %s", e.Provider)
}

// MissingGridError indicates the provider's fixed tiling-grid layer could
// not be opened.
type MissingGridError struct {
	Path string
}

func (e *MissingGridError) Error() string {
	return fmt.Sprintf("tiling-grid layer not found or unreadable: %s", e.Path)
}

// NoImageryInPeriodError is raised by the orchestrator when a whole
// window yields an empty composition list. Per-tile empty selections are
// only logged; an empty window is terminal.
type NoImageryInPeriodError struct {
	Tiles  []string
	Window Window
}

func (e *NoImageryInPeriodError) Error() string {
	return fmt.Sprintf("no imagery available for tiles | %s | in period %s",
		strings.Join(e.Tiles, " | "), e.Window)
}

// CompositionError marks a per-scene download or band-composition failure
// (e.g. a failed pansharpening). The adapter skips the scene and tries the
// next-best candidate instead of aborting the tile.
type CompositionError struct {
	SceneID string
	Stage   string
	Err     error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("scene %s failed at %s: %v", e.SceneID, e.Stage, e.Err)
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}
