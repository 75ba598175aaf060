package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Originality API",
        "description": "Background document verification service for course submissions",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Service-account token exchange"},
        {"name": "Verification", "description": "Synchronous check-now path"},
        {"name": "Events", "description": "Host submission event intake"},
        {"name": "Queue", "description": "Admin queue surface"},
        {"name": "Exports", "description": "Module summary exports"}
    ],
    "paths": {
        "/auth/token": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Issue access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/check": {
            "post": {
                "tags": ["Verification"],
                "summary": "Verify a document now",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not in queue"},
                    "409": {"description": "Checking disabled or limit reached"}
                }
            }
        },
        "/events/submissions": {
            "post": {
                "tags": ["Events"],
                "summary": "Receive a submission event",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmissionEvent"}}
                ],
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        },
        "/queue/modules/{cmid}": {
            "get": {
                "tags": ["Queue"],
                "summary": "List module queue",
                "parameters": [
                    {"name": "cmid", "in": "path", "required": true, "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/modules/{cmid}/log": {
            "get": {
                "tags": ["Queue"],
                "summary": "List module audit trail",
                "parameters": [
                    {"name": "cmid", "in": "path", "required": true, "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/documents/{id}": {
            "get": {
                "tags": ["Queue"],
                "summary": "Get queue document with audit trail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/queue/sweeps/upload": {
            "post": {
                "tags": ["Queue"],
                "summary": "Trigger the upload sweep",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/queue/sweeps/status": {
            "post": {
                "tags": ["Queue"],
                "summary": "Trigger the status sweep",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Schedule a module export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Get export job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/exports/download/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an export",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "TokenRequest": {
            "type": "object",
            "properties": {
                "client_id": {"type": "string"},
                "client_secret": {"type": "string"},
                "user_id": {"type": "integer"},
                "can_be_checked": {"type": "boolean"},
                "checker": {"type": "boolean"},
                "site_admin": {"type": "boolean"}
            },
            "required": ["client_id", "client_secret"]
        },
        "CheckRequest": {
            "type": "object",
            "properties": {
                "doctype": {"type": "string", "enum": ["file", "forum", "assign", "workshop", "quiz"]},
                "typeid": {"type": "string"},
                "content": {"type": "string", "description": "Hex-encoded clear text for text answers"}
            },
            "required": ["doctype", "typeid"]
        },
        "SubmissionEvent": {
            "type": "object",
            "properties": {
                "doctype": {"type": "string"},
                "courseid": {"type": "integer"},
                "cmid": {"type": "integer"},
                "userid": {"type": "integer"},
                "answerid": {"type": "integer"},
                "discussion": {"type": "integer"},
                "assignment": {"type": "integer"},
                "attemptnumber": {"type": "integer"},
                "content": {"type": "string"},
                "fileid": {"type": "string"},
                "filename": {"type": "string"},
                "submitted": {"type": "boolean"},
                "created_at": {"type": "string"},
                "modified_at": {"type": "string"},
                "author": {"$ref": "#/definitions/AuthorContext"}
            },
            "required": ["doctype", "courseid", "cmid", "userid", "answerid"]
        },
        "AuthorContext": {
            "type": "object",
            "properties": {
                "user_id": {"type": "integer"},
                "site_admin": {"type": "boolean"},
                "can_be_checked": {"type": "boolean"},
                "checker": {"type": "boolean"}
            }
        },
        "ExportRequest": {
            "type": "object",
            "properties": {
                "cmid": {"type": "integer"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            },
            "required": ["cmid", "format"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
