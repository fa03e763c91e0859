// Package controller is the REST client for a Mannito Farming controller.
//
// All endpoints live under http://{host}:{port}/api and use HTTP basic
// auth when credentials are configured:
//
//	GET  /device/all      bulk snapshot (devices, sensors, slots)
//	GET  /components      component catalog (v1 firmware: /device/list)
//	GET  /device/{id}     live state of one device
//	POST /device/{id}     {"state": ...} or {"powerlevel": n}
//	GET  /info            controller identity metadata
//	POST /sensor          external sensor readings pushed by the host
//
// Field names differ between firmware revisions; a Schema selects one
// revision per client (see SchemaV1 and SchemaV2).
//
// Every transport error and every non-200 status is reported as
// ErrConnection. Credential rejections also match ErrAuth.
package controller
