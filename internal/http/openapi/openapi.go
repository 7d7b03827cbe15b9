// Package openapi embeds the OpenAPI description of the ledger's HTTP API.
package openapi

import _ "embed"

// YAML contains the embedded OpenAPI document.
//
//go:embed openapi.yaml
var YAML []byte
