// Package provision creates document collections ahead of ingestion.
//
// A Provisioner ensures a collection exists with a declared mapping. It never
// alters an existing collection. Two profiles control what a create request
// carries:
//   - ProfileSelfManaged sends the mapping together with shard and replica settings
//   - ProfileServerless sends the mapping only, as managed deployments require
package provision
