// Package schema validates data type definitions and translates them into
// engine mappings.
//
// A definition is a JSON object with a single key, the type name, whose value
// describes the root object:
//
//	{
//	  "dog": {
//	    "_type": "object",
//	    "_id": "name",
//	    "_acl": {"user": ["create", "readMine"]},
//	    "name": {"_type": "string", "_required": true},
//	    "bio": {"_type": "text", "_language": "english"},
//	    "owner": {"firstname": {"_type": "string"}}
//	  }
//	}
//
// Validate normalizes a definition into a Schema. Translate turns a Schema into
// the strict mapping of its index and keeps the normalized definition in the
// mapping metadata, which FromMapping reads back. The Registry stores schemas
// per tenant and records their ACL in the tenant settings.
package schema
