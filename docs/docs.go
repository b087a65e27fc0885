// Package docs registers the OpenAPI description served under /swagger.
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
        "/healthz": {"get": {"summary": "Health check", "responses": {"200": {"description": "OK"}}}},
        "/contact": {"post": {"summary": "Send a contact or quote request", "responses": {"202": {"description": "Accepted"}, "400": {"description": "Bad Request"}, "429": {"description": "Too Many Requests"}}}},
        "/programmes/{ref}": {"get": {
            "summary": "Get programme edition with sessions and availability",
            "parameters": [{"type": "string", "description": "Edition ID or programme key", "name": "ref", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "503": {"description": "Service Unavailable"}}
        }},
        "/programmes/{ref}/availability": {"get": {
            "summary": "Get availability of every date option of an edition",
            "parameters": [{"type": "string", "description": "Edition ID or programme key", "name": "ref", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
        }},
        "/programmes/{ref}/availability/stream": {"get": {
            "summary": "Stream availability changes of an edition (SSE)",
            "parameters": [{"type": "string", "description": "Edition ID or programme key", "name": "ref", "in": "path", "required": true}],
            "responses": {"200": {"description": "text/event-stream"}, "404": {"description": "Not Found"}, "503": {"description": "Service Unavailable"}}
        }},
        "/programmes/{ref}/register": {"post": {
            "summary": "Register for an edition (idempotent)",
            "parameters": [
                {"type": "string", "description": "Edition ID or programme key", "name": "ref", "in": "path", "required": true},
                {"type": "string", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header"}
            ],
            "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}, "429": {"description": "Too Many Requests"}}
        }},
        "/events": {"get": {"summary": "List upcoming events", "responses": {"200": {"description": "OK"}}}},
        "/events/{id}": {"get": {
            "summary": "Get event",
            "parameters": [{"type": "string", "description": "Event ID", "name": "id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "410": {"description": "Gone"}}
        }},
        "/events/{id}/register": {"post": {
            "summary": "Register for an event (idempotent)",
            "parameters": [{"type": "string", "description": "Event ID", "name": "id", "in": "path", "required": true}],
            "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}, "410": {"description": "Gone"}}
        }}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Studio booking API",
	Description:      "Programme editions, events and registrations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
