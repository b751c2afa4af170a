// Package acl evaluates role based and ownership based permissions on data types.
//
// # Model
//
// Every data type of a tenant carries a RolePermissions map: role name to a
// bitset of Permission values. Types declaring no ACL get DefaultRolePermissions.
//
// The pseudo role "all" is held by every caller and "user" by every
// authenticated credential. Holders of "superadmin" (within their tenant) or
// "superdog" (on every tenant) bypass ACLs entirely.
//
// # Ownership
//
// Read, update and delete come in three variants. For one action family the
// evaluator computes the exact, mine and group predicates together and keeps
// the most permissive one:
//
//	all   - the exact permission is held
//	mine  - the mine variant is held and subject.ID == resource.Owner
//	group - the group variant is held and both groups are equal and non-empty
//
//	grant := acl.Decide(subject, rp, acl.UpdateFamily, acl.Resource{Owner: obj.Owner})
//	if !grant.Allowed() {
//		return errs.Forbidden(...)
//	}
package acl
