package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Asistencia IE API",
        "description": "API de control de asistencia escolar: registro QR, retiros, justificaciones y reportes",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, refresh y sesión"},
        {"name": "Users", "description": "Gestión de usuarios y roles"},
        {"name": "Students", "description": "Estudiantes, aulas y apoderados"},
        {"name": "Attendance", "description": "Registro de asistencia por QR"},
        {"name": "Withdrawals", "description": "Retiros de estudiantes"},
        {"name": "Justifications", "description": "Justificaciones de inasistencias"},
        {"name": "Notifications", "description": "Bandeja de notificaciones"},
        {"name": "Tolerance", "description": "Configuración de tolerancia"},
        {"name": "Schedule", "description": "Horarios y calendario escolar"},
        {"name": "Reports", "description": "Reportes y exportaciones"},
        {"name": "Cron", "description": "Tareas programadas"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/asistencias/entrada": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Register entry by QR",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterEntryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Entry already registered"}
                }
            }
        },
        "/asistencias/salida": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Register exit by QR",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No entry registered"}
                }
            }
        },
        "/retiros": {
            "post": {
                "tags": ["Withdrawals"],
                "summary": "Request a withdrawal",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Withdrawals"],
                "summary": "List withdrawals",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/justificaciones": {
            "post": {
                "tags": ["Justifications"],
                "summary": "Submit a justification",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Justifications"],
                "summary": "List justifications",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reportes": {
            "post": {
                "tags": ["Reports"],
                "summary": "Generate an attendance report",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cron/marcar-faltas": {
            "post": {
                "tags": ["Cron"],
                "summary": "Mark absentees for the school",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RegisterEntryRequest": {
            "type": "object",
            "properties": {
                "qr_code": {"type": "string"}
            },
            "required": ["qr_code"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
