/*
Package servicebus is the in-process dispatcher. Bus.Execute resolves the
single binding of a message from a frozen registry, invokes it, drains what
it produced, executes emitted commands depth-first, hands domain events to
the publish hook and returns the produced items to the caller.
*/
package servicebus
