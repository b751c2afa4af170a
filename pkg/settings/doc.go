// Package settings stores per-tenant settings documents.
//
// Settings live in the reserved settings type of each tenant and are addressed
// by id. Two ids are used internally: "credentials" holds the credentials
// policy of the tenant and "dataacl" holds the role permissions of every
// registered data type.
//
// Reads go through a two tier cache. The first tier is an in-process
// expirable LRU, the second an optional Redis instance shared by every
// kennel process. Writes through the Store invalidate both tiers; writes
// made by other processes become visible once the short TTL elapses.
//
// Usage:
//
//	store := settings.NewStore(eng, settings.Options{CacheTTL: 30 * time.Second})
//	var cs credentials.Settings
//	err := store.Get(ctx, "acme", settings.CredentialsID, &cs)
package settings
