// Package engagement implements the engagement tracker, which records
// sent/opened/clicked/submitted events per (campaign, recipient).
//
// Recording is idempotent per kind and monotone across kinds: a later stage
// arriving without the earlier ones backfills them at the same timestamp.
// Calls for the same (campaign, recipient) pair are serialized; distinct
// pairs proceed in parallel.
package engagement
