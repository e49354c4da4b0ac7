// Package docs registers the OpenAPI document served by the Swagger UI
// when the binary is built with -tags=swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "produces": ["application/json"],
                "summary": "Liveness banner",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.RootResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Process liveness",
                "responses": {"200": {"description": "ok"}}
            }
        },
        "/readyz": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Model readiness",
                "responses": {
                    "200": {"description": "ready"},
                    "503": {"description": "loading"}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Cache state, loaded model and queue depth",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/predict": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "summary": "Caption one image",
                "parameters": [
                    {"type": "file", "description": "Image file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.CaptionResponse"}},
                    "400": {"description": "Invalid image", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too busy", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Model unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/predict_batch": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "summary": "Caption several images, results in upload order",
                "parameters": [
                    {"type": "file", "description": "Image files", "name": "files", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.BatchResponse"}},
                    "400": {"description": "Invalid image or batch too large", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too busy", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Model unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.RootResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "message": {"type": "string", "example": "captiond is up"}
            }
        },
        "types.CaptionResponse": {
            "type": "object",
            "properties": {
                "caption": {"type": "string", "example": "a dog running on the beach"}
            }
        },
        "types.BatchResult": {
            "type": "object",
            "properties": {
                "filename": {"type": "string", "example": "beach.jpg"},
                "caption": {"type": "string", "example": "a dog running on the beach"}
            }
        },
        "types.BatchResponse": {
            "type": "object",
            "properties": {
                "results": {"type": "array", "items": {"$ref": "#/definitions/types.BatchResult"}}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid image input: empty image data"},
                "code": {"type": "integer", "example": 400}
            }
        },
        "types.ModelInfo": {
            "type": "object",
            "properties": {
                "family": {"type": "string", "example": "blip"},
                "path": {"type": "string", "example": "/srv/models/blip-base"},
                "device": {"type": "string", "example": "cpu"},
                "loaded_at_unix": {"type": "integer", "example": 1700000000}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "ready"},
                "model": {"$ref": "#/definitions/types.ModelInfo"},
                "loads": {"type": "integer", "example": 1},
                "load_failures": {"type": "integer", "example": 0},
                "error": {"type": "string"},
                "uptime_seconds": {"type": "integer", "example": 3600},
                "queue_len": {"type": "integer", "example": 0},
                "inflight": {"type": "integer", "example": 1},
                "max_queue_depth": {"type": "integer", "example": 32},
                "max_inflight": {"type": "integer", "example": 1}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "captiond API",
	Description:      "HTTP API for image captioning inference.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
