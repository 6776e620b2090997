// Package httputil holds the JSON response envelope and request decoding
// shared by the API handlers. Errors are written as
// {"error": "...", "code": "..."}; 5xx responses never carry the cause.
package httputil
