package provider

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/artpar/waveplan/internal/core/catalog"
	"github.com/artpar/waveplan/internal/core/compose"
)

// Catalog file formats.
const (
	FormatAuto    = "auto"
	FormatCatalog = "catalog"
	FormatCompose = "compose"
)

// Parser turns file contents into a catalog.
type Parser func(data []byte) (*catalog.Catalog, error)

// NewParser returns the parser for a format. FormatAuto picks the compose
// importer for files named like compose.yaml or docker-compose.yml and the
// catalog parser otherwise.
func NewParser(format, path string) (Parser, error) {
	switch format {
	case FormatCatalog:
		return catalog.Parse, nil

	case FormatCompose:
		return parseCompose, nil

	case FormatAuto, "":
		if isComposeFile(path) {
			return parseCompose, nil
		}
		return catalog.Parse, nil

	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", format)
	}
}

func parseCompose(data []byte) (*catalog.Catalog, error) {
	return compose.ParseGraph(string(data))
}

func isComposeFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	return strings.HasPrefix(name, "compose.") ||
		strings.HasPrefix(name, "docker-compose") ||
		strings.Contains(name, ".compose.")
}
