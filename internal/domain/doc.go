// Package domain holds the overlay platform's core types and the contracts
// adapters implement: holders and their session tokens, the session store,
// the Discord identity provider and the layout model catalog.
//
// Nothing here touches I/O. Interfaces sit on the consumer side so that
// app and adapter packages can depend on domain without importing each other.
package domain
