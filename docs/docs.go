// Package docs carries the OpenAPI document served by the swagger UI.
package docs

import _ "embed"

//go:embed swagger.json
var SwaggerJSON []byte
