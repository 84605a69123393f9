package indicators

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// maxCatalogFileSize caps catalog files at 1MB.
const maxCatalogFileSize = 1024 * 1024

// Load reads a catalog definition from a YAML (.yaml, .yml) or TOML (.toml)
// file and compiles it. A file catalog replaces the built-in table entirely.
func Load(path string) (*Catalog, error) {
	content, err := readCatalogFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(content, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	cat, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes a catalog definition. ext selects the format and includes the
// leading dot.
func Parse(content []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		k := koanf.New(".")
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, err
		}
		if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.Decode(string(content), &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", ext)
	}
	return &cfg, nil
}

func readCatalogFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat catalog: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("catalog path %s is a directory", path)
	}
	if info.Size() > maxCatalogFileSize {
		return nil, fmt.Errorf("catalog file too large: %d bytes (max %d)", info.Size(), maxCatalogFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxCatalogFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if len(content) > maxCatalogFileSize {
		return nil, fmt.Errorf("catalog file too large (max %d bytes)", maxCatalogFileSize)
	}
	return content, nil
}
