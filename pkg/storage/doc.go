// Package storage holds the adapters kennel uses outside the document engine:
// a Redis client for the shared settings cache and export sinks (S3 or the
// local filesystem) for tenant data exports.
package storage
