/*
Package registry builds the message type to handler binding table.

Handlers are registered explicitly through sources: a free function bound to
its own message parameter (Func), one function associated with several
message types (Untyped), a handler-owning type whose public methods are
bindings (Owner), or a namespace of any of these (Module). Each Register call
validates its whole source and commits atomically; Freeze publishes an
immutable snapshot that is read without locks.
*/
package registry
