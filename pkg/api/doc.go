// Package api implements the kennel HTTP API.
//
// # Overview
//
// The server exposes the backend lifecycle, credentials, schemas, settings
// and data operations of every backend under /1. Each request is addressed to
// one backend through the X-Kennel-Backend header or the host and runs as the
// caller resolved by the authentication middleware.
//
// # Routes
//
//	GET    /                                  ping
//	POST   /1/backend                         create a backend
//	GET    /1/backend                         list backends (superdog)
//	DELETE /1/backend                         delete the addressed backend
//	POST   /1/credentials                     sign up or create credentials
//	GET    /1/credentials                     search credentials (admin)
//	DELETE /1/credentials                     delete every credential but superadmins
//	GET    /1/credentials/{id}                get credentials, "me" for the caller
//	PUT    /1/credentials/{id}                update credentials
//	DELETE /1/credentials/{id}                delete credentials
//	PUT    /1/credentials/{id}/password       change a password
//	POST   /1/credentials/{id}/password       reset a password with a code
//	DELETE /1/credentials/{id}/password       issue a reset code (admin)
//	POST   /1/credentials/forgotPassword      mail a reset code
//	GET    /1/login, /1/logout                issue and revoke access tokens
//	GET    /1/schema[/{type}]                 read schemas
//	PUT    /1/schema/{type}                   set a schema (admin)
//	DELETE /1/schema/{type}                   delete a schema and its objects (admin)
//	GET    /1/settings/{id}                   read settings (admin)
//	PUT    /1/settings/{id}                   write settings (admin)
//	DELETE /1/settings/{id}                   delete settings (admin)
//	GET    /1/data, /1/data/{type}            search objects
//	POST   /1/data/{type}                     create an object
//	DELETE /1/data/{type}                     delete objects by query
//	GET    /1/data/{type}/{id}                read an object
//	PUT    /1/data/{type}/{id}                update or create an object
//	PATCH  /1/data/{type}/{id}                update an object
//	DELETE /1/data/{type}/{id}                delete an object
//	GET    /1/data/{type}/{id}/{field}        read a field
//	PUT    /1/data/{type}/{id}/{field}        write a field
//	DELETE /1/data/{type}/{id}/{field}        remove a field
//	POST   /1/data/{type}/_export             export objects as NDJSON
//	POST   /1/data/{type}/_import             import objects from NDJSON
//	POST   /1/search                          search with a JSON body
//
// # Errors
//
// Errors are written as {"error": message, "code": code} with the status of
// their kind: 400 validation, 401 unauthorized, 403 forbidden, 404 not found,
// 409 conflict and 500 internal.
package api
