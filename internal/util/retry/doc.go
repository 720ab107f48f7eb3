// Package retry provides exponential backoff retry logic for transient failures.
//
// [Do] retries an operation with a configurable number of retries, initial
// delay and maximum delay. It is used by the IP list fetcher, where a single
// dropped connection should not cost a whole sync cycle. Errors wrapped with
// [Permanent] (for example a malformed list body) are returned immediately.
package retry
