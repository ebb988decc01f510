// Package sharedtable multiplexes many tenants' virtual tables onto a small
// set of shared physical DynamoDB tables. A Router presents the standard
// table and item API to each tenant while rewriting every request and
// response on the way through: table names are swapped for their physical
// targets, hash-key values are qualified with the owning tenant and virtual
// table name, query and scan requests are re-targeted and scoped, and change
// stream records are translated back to tenant-visible form.
//
// The Router itself satisfies ddbiface.Client, so routers stack over any
// other client implementation, including other routers.
package sharedtable
