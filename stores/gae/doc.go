//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore passport.CredentialStore.
// It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
//   - Account: keyed by username; the numeric account id is allocated with
//     AllocateIDs and stored as a property.
//   - ResetTicket: keyed by token.
//
// Keying accounts by username makes uniqueness a transactional Get/Put and
// lets ConsumeResetTicket touch both entities inside one transaction.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewCredentialStore(client, "") // default namespace
package gae
