//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the
// estateauth store interfaces. It supports multi-tenancy through Datastore
// namespaces.
//
// # Datastore Kinds
//
//   - Principal: accounts, keyed by principal id
//   - PrincipalEmail: unique email reservations pointing at a principal
//   - PrincipalGoogleID: unique Google subject reservations pointing at a principal
//   - Profile: owner profiles, keyed by principal id
//
// Uniqueness of email and Google subject is enforced by writing the
// reservation entities in the same transaction as the principal.
//
// # Namespacing
//
// Pass a tenant namespace when creating stores to isolate data between tenants:
//
//	principals := gae.NewPrincipalStore(client, "tenant-123")
//	profiles := gae.NewProfileStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	principals := gae.NewPrincipalStore(client, "")  // default namespace
package gae
