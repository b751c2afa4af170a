// Package data stores the objects of tenant defined types.
//
// Every object is addressed by tenant, type and id and carries a meta object
// with its owner, group and timestamps. Reads and writes are authorized by
// the type ACL before the engine is reached, except for the ownership checks
// of the mine and group permissions, which need the stored object. Writes are
// compare-and-swap on the version that was read.
package data
