/*
Package session serializes access to runs.

A Manager wraps a checkpoint store with a per-run mutex (reference counted, so
locks of finished runs are collected) and, optionally, a distributed lock for
deployments where several processes share one store.
*/
package session
