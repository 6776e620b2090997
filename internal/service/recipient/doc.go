// Package recipient implements the recipient registry and the bulk import
// validator.
//
// The registry owns recipient and group records and enforces uniqueness of
// normalized email addresses and group names. Group membership is a live
// view: edits change what a future launch resolves but never what a
// launched campaign already froze.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package recipient
