package config

import (
	_ "embed"

	configschema "github.com/cordum/pkgvault/core/infra/schema"
)

//go:embed schema/storages.schema.json
var storagesSchemaJSON []byte

var storagesSchema = configschema.MustCompile("pkgvault-storages", storagesSchemaJSON)
