// Package seed bootstraps backends from declarative YAML manifests.
//
// A manifest names a backend, its first superadmin, credentials settings,
// custom settings documents, schemas written in the schema grammar and extra
// credentials:
//
//	backendId: acme
//	superadmin:
//	  username: boss
//	  password: change-me
//	credentialsSettings:
//	  guestSignUpEnabled: true
//	schemas:
//	  msg:
//	    _acl:
//	      user: [create, read, search, updateMine, deleteMine]
//	    body:
//	      _type: text
//	credentials:
//	  - username: fred
//	    password: secret-fred
//
// Applier.Apply is idempotent. Watcher re-applies manifests when they change
// on disk.
package seed
