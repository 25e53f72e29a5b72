//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

const swaggerTemplate = `{
  "swagger": "2.0",
  "info": {"title": "{{.Title}}", "description": "{{escape .Description}}", "version": "{{.Version}}"},
  "basePath": "{{.BasePath}}",
  "paths": {
    "/models": {"get": {"summary": "List models", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/status": {"get": {"summary": "Instance and budget status", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/sample": {"post": {"summary": "Run a sampling job", "consumes": ["application/json"], "produces": ["application/x-ndjson"],
      "responses": {"200": {"description": "NDJSON event stream"}, "400": {"description": "Invalid request"}, "404": {"description": "Model not found"}, "429": {"description": "Too busy"}, "503": {"description": "Backend unavailable"}}}},
    "/schedule": {"post": {"summary": "Compute a sigma schedule", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid request"}}}},
    "/tiles": {"post": {"summary": "Plan a tile grid", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid request"}}}}
  }
}`

// SwaggerInfo holds the exported Swagger Info.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Title:            "diffusiond API",
	Description:      "Tiled diffusion sampling scheduler.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  swaggerTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the UI at /swagger/ and the document at
// /swagger/doc.json.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
