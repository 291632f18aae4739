/*
Package observability turns engine lifecycle events into logs and Prometheus metrics.

Hooks from several sources can be merged with Combine and handed to the engine
through WithLifecycleHooks.
*/
package observability
