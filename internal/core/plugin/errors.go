package plugin

import "fmt"

const (
	LOAD_REASON_MANIFEST          = "manifest"
	LOAD_REASON_IDENTITY_MISMATCH = "identity_mismatch"
	LOAD_REASON_NOT_REGISTERED    = "not_registered"
	LOAD_REASON_IMPORT            = "import"
	LOAD_REASON_INSTANTIATION     = "instantiation"
	LOAD_REASON_REQUIREMENT       = "requirement"
	LOAD_REASON_DUPLICATE         = "duplicate"
)

// PluginLoadError reports a plugin that was found but could not be loaded.
// It never aborts the discovery pass.
type PluginLoadError struct {
	Plugin string
	Dir    string
	Reason string
	Err    error
}

func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("plugin %s (%s): %s: %v", e.Plugin, e.Dir, e.Reason, e.Err)
}

func (e *PluginLoadError) Unwrap() error {
	return e.Err
}
