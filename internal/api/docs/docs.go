// Package docs registers the OpenAPI description of the HTTP API with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/rates": {
            "get": {
                "description": "Resolve the rate converting one unit of base into term, triangulating through provider pivots",
                "produces": ["application/json"],
                "tags": ["rates"],
                "summary": "Get an exchange rate",
                "parameters": [
                    {"type": "string", "description": "ISO 4217 base currency", "name": "base", "in": "query", "required": true},
                    {"type": "string", "description": "ISO 4217 term currency", "name": "term", "in": "query", "required": true},
                    {"type": "string", "description": "Valuation date (YYYY-MM-DD); searched with the look-back window", "name": "date", "in": "query"},
                    {"type": "string", "description": "Comma-separated dates searched verbatim", "name": "dates", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.RateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.NotFoundResponse"}}
                }
            }
        },
        "/api/v1/providers": {
            "get": {
                "description": "Enabled rate providers, in the order the engine consults them",
                "produces": ["application/json"],
                "tags": ["providers"],
                "summary": "List providers",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ProvidersResponse"}}
                }
            }
        },
        "/api/v1/resources": {
            "get": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "List resources",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/resource.Stats"}}}
                }
            }
        },
        "/api/v1/resources/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "Get resource stats",
                "parameters": [
                    {"type": "string", "description": "Resource id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/resource.Stats"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/resources/{id}/load": {
            "post": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "Load a resource",
                "parameters": [
                    {"type": "string", "description": "Resource id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ActionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/resources/{id}/load-local": {
            "post": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "Load a resource locally",
                "parameters": [
                    {"type": "string", "description": "Resource id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ActionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/resources/{id}/reset": {
            "post": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "Reset a resource to its fallback",
                "parameters": [
                    {"type": "string", "description": "Resource id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ActionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["resources"],
                "summary": "List scheduled jobs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/cron.JobInfo"}}}
                }
            }
        }
    },
    "definitions": {
        "api.ActionResponse": {
            "type": "object",
            "properties": {
                "action": {"type": "string"},
                "loaded": {"type": "boolean"},
                "resource": {"type": "string"},
                "stats": {"$ref": "#/definitions/resource.Stats"}
            }
        },
        "api.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "api.NotFoundResponse": {
            "type": "object",
            "properties": {
                "base": {"type": "string"},
                "error": {"type": "string"},
                "found": {"type": "boolean"},
                "term": {"type": "string"}
            }
        },
        "api.ProvidersResponse": {
            "type": "object",
            "properties": {
                "providers": {"type": "array", "items": {"$ref": "#/definitions/providers.Info"}}
            }
        },
        "api.RateResponse": {
            "type": "object",
            "properties": {
                "base": {"type": "string"},
                "date": {"type": "string"},
                "kind": {"type": "string"},
                "provenance": {"type": "array", "items": {"$ref": "#/definitions/rates.Record"}},
                "provider": {"type": "string"},
                "rate": {"type": "string"},
                "term": {"type": "string"}
            }
        },
        "cron.JobInfo": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "next": {"type": "string"},
                "triggers": {"type": "array", "items": {"type": "string"}}
            }
        },
        "providers.Info": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "landing_url": {"type": "string"},
                "name": {"type": "string"},
                "pivot": {"type": "string"},
                "resources": {"type": "array", "items": {"type": "string"}},
                "strategy": {"type": "string"}
            }
        },
        "rates.Record": {
            "type": "object",
            "properties": {
                "base": {"type": "string"},
                "date": {"type": "string"},
                "factor": {"type": "string"},
                "kind": {"type": "string"},
                "provenance": {"type": "array", "items": {"$ref": "#/definitions/rates.Record"}},
                "provider": {"type": "string"},
                "term": {"type": "string"}
            }
        },
        "resource.Stats": {
            "type": "object",
            "properties": {
                "access_count": {"type": "integer"},
                "cached": {"type": "boolean"},
                "id": {"type": "string"},
                "in_memory": {"type": "boolean"},
                "last_loaded": {"type": "string"},
                "load_count": {"type": "integer"},
                "policy": {"type": "string"},
                "version": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "fxratemanager API",
	Description:      "Exchange rates triangulated from central bank feeds.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
