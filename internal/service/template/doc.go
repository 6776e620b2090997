// Package template implements the template store: reusable phishing
// messages with flat {{variable}} placeholders, their declared variable
// lists, versioning once a template has been sent, and per-recipient
// rendering.
//
// Only flat named placeholders are accepted. Tags, filters, and dotted
// paths are rejected at save time, so rendering through the Liquid engine
// never executes anything beyond plain substitution.
package template
