// Package variant provides the type-erased value that flows between operation
// sockets. A Variant carries a type tag and a shared, immutable payload;
// copying a Variant shares the payload and never deep-copies it.
package variant
