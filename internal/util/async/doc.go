// Package async provides bounded parallel task execution with error
// collection.
//
// [RunParallel] runs independent operations concurrently under a
// concurrency limit and returns all of their errors joined.
package async
