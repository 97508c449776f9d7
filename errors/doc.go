// Package errors provides classified error handling for visionflow operations,
// sockets and the engine. Errors fall into three classes that decide how the
// engine reacts: Invalid errors are usage or configuration mistakes reported
// synchronously, Fatal errors stop the failing operation, and Transient errors
// are reserved for leaf operations that talk to flaky collaborators.
package errors
