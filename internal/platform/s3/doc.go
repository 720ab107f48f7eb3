// Package s3 provides a client for S3 and S3-compatible object storage.
//
// It is used by the IP list fetcher for s3://bucket/key sources, so a list
// published to a bucket can drive reconciliation the same way an HTTP
// endpoint does. Explicit keys and an endpoint make non-AWS stores such as
// Hetzner Object Storage reachable; otherwise the default AWS chain applies.
package s3
