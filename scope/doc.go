// Package scope implements the variable environment of component execution.
//
// A [Context] holds four stores searched in fixed order for unqualified
// names: component, request, session, application. The first store holding
// a name wins, so component code can shadow shared state without
// qualifying references. A qualified name such as "session.cart" reads and
// writes exactly one store.
//
// Session and application stores are shared by every context created with
// the same [Shared] value. Each store carries its own lock, so executions
// touching unrelated stores never contend.
//
// Array variables are updated by [Context.Apply], which copies the stored
// array, applies an [Operation] to the copy and stores the copy.
package scope
