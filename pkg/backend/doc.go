// Package backend manages the lifecycle of tenants, called backends on the
// wire: creation with a first superadmin, listing and deletion of every index
// a tenant owns.
package backend
