// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/record/{slug}": {
            "post": {
                "description": "Any call is recorded against the slug and answered with the slug's response policy. A GET accepting text/html, or a call carrying X-Viewer-Fetch, is a viewer load instead. The viewer load is not gated by the creation marker or an owner identity.",
                "produces": ["application/json"],
                "tags": ["Capture"],
                "summary": "Capture a request (or load the viewer)",
                "operationId": "record",
                "parameters": [
                    {"type": "string", "description": "Slug", "name": "slug", "in": "path", "required": true},
                    {"type": "string", "description": "Marks a viewer data fetch", "name": "X-Viewer-Fetch", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "Viewer load; capture calls answer with the configured response", "schema": {"$ref": "#/definitions/services.ViewResult"}},
                    "404": {"description": "Slug never activated", "schema": {"$ref": "#/definitions/handlers.CaptureError"}},
                    "500": {"description": "Capture could not be stored", "schema": {"$ref": "#/definitions/handlers.CaptureError"}}
                }
            }
        },
        "/api/record/{slug}": {
            "get": {
                "description": "Returns the most recent captures, newest first. Only the bound owner, or a browser holding the slug's creation marker cookie, may read them.",
                "produces": ["application/json"],
                "tags": ["Viewer"],
                "summary": "Recent captures of a slug",
                "operationId": "listRequests",
                "parameters": [
                    {"type": "string", "description": "Slug", "name": "slug", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.CaptureRecord"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/record/{slug}/export": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Viewer"],
                "summary": "Export captures",
                "operationId": "exportRequests",
                "parameters": [
                    {"type": "string", "description": "Slug", "name": "slug", "in": "path", "required": true},
                    {"type": "string", "description": "HTTP method filter", "name": "method", "in": "query"},
                    {"type": "string", "description": "UTC day (YYYY-MM-DD)", "name": "date", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.CaptureRecord"}}},
                    "400": {"description": "Invalid slug or date", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/config/{slug}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Config"],
                "summary": "Get the response policy",
                "operationId": "getConfig",
                "parameters": [
                    {"type": "string", "description": "Slug", "name": "slug", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ResponseConfig"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Config"],
                "summary": "Save the response policy",
                "operationId": "setConfig",
                "parameters": [
                    {"type": "string", "description": "Slug", "name": "slug", "in": "path", "required": true},
                    {"description": "Response policy", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ConfigRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ConfigResponse"}},
                    "400": {"description": "Invalid slug, body or status", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/slugs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Slugs"],
                "summary": "List my slugs",
                "operationId": "listSlugs",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListSlugsResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Slugs"],
                "summary": "Mint a slug",
                "operationId": "createSlug",
                "parameters": [
                    {"description": "Title", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateSlugRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.CreateSlugResponse"}},
                    "400": {"description": "Title normalizes to nothing", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/cron/{job}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Run a scheduled job",
                "operationId": "cron",
                "parameters": [
                    {"enum": ["daily-summary"], "type": "string", "description": "Job name", "name": "job", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DailySummary"}},
                    "401": {"description": "Missing or wrong cron secret", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/stats/summary/{date}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Daily summary",
                "operationId": "getSummary",
                "parameters": [
                    {"type": "string", "description": "UTC day (YYYY-MM-DD)", "name": "date", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DailySummary"}},
                    "404": {"description": "No summary for that day", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/stats/summaries": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Summary history",
                "operationId": "listSummaries",
                "parameters": [
                    {"maximum": 366, "minimum": 1, "type": "integer", "default": 30, "description": "Max items", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListSummariesResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.CaptureRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "timestamp": {"type": "string"},
                "method": {"type": "string"},
                "headers": {"type": "object"},
                "body": {"type": "object"},
                "query": {"type": "object"},
                "ip": {"type": "string"},
                "responseStatus": {"type": "integer"},
                "responseBody": {"type": "string"},
                "responseContentType": {"type": "string"}
            }
        },
        "domain.ResponseConfig": {
            "type": "object",
            "properties": {
                "status": {"type": "integer", "example": 200},
                "body": {"type": "string", "example": "{\"success\": true}"},
                "contentType": {"type": "string", "example": "application/json"}
            }
        },
        "domain.SlugHits": {
            "type": "object",
            "properties": {
                "slug": {"type": "string"},
                "hits": {"type": "integer"}
            }
        },
        "domain.DailySummary": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "totalHits": {"type": "integer"},
                "activeSlugsCount": {"type": "integer"},
                "topSlugs": {"type": "array", "items": {"$ref": "#/definitions/domain.SlugHits"}},
                "generatedAt": {"type": "string"}
            }
        },
        "handlers.CaptureError": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "Slug not found"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string"}
            }
        },
        "handlers.ConfigRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "integer", "example": 201},
                "body": {"type": "string", "example": "{\"ok\":true}"},
                "contentType": {"type": "string", "example": "application/json"}
            }
        },
        "handlers.ConfigResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "config": {"$ref": "#/definitions/domain.ResponseConfig"}
            }
        },
        "handlers.CreateSlugRequest": {
            "type": "object",
            "required": ["title"],
            "properties": {
                "title": {"type": "string", "example": "Orders Webhook"}
            }
        },
        "handlers.CreateSlugResponse": {
            "type": "object",
            "properties": {
                "slug": {"type": "string"},
                "captureUrl": {"type": "string"},
                "viewUrl": {"type": "string"}
            }
        },
        "handlers.ListSlugsResponse": {
            "type": "object",
            "properties": {
                "slugs": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.ListSummariesResponse": {
            "type": "object",
            "properties": {
                "summaries": {"type": "array", "items": {"$ref": "#/definitions/domain.DailySummary"}}
            }
        },
        "services.ViewResult": {
            "type": "object",
            "properties": {
                "slug": {"type": "string"},
                "host": {"type": "string"},
                "requests": {"type": "array", "items": {"$ref": "#/definitions/domain.CaptureRecord"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Callback Handler API",
	Description:      "Captures inbound HTTP calls per slug, answers them with a configurable response and replays them to the slug's viewer.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
