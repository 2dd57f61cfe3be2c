/*
Package proxy implements a REST API for sending commands to Tesla vehicles through the owner API.

Requests to /api/1/vehicles/{id}/command/{name} are validated and mapped onto the vehicle command
catalog, and commands for one vehicle are executed one at a time. Every other /api/1/ path is
forwarded to the owner API unchanged. Clients authenticate with their own bearer token.
*/
package proxy
