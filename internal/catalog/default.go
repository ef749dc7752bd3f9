package catalog

import (
	_ "embed"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Default returns the catalog embedded in the binary, used by the demo
// shell when no catalog path is configured.
func Default() (*Static, error) {
	return Parse(defaultCatalogYAML)
}
