// Package tool defines the records and contracts shared by every part of
// toolhub: tools, handlers, the executor contract and the error taxonomy.
//
// Invariants:
// - A handler's kind never changes after creation.
// - Tools reference handlers by Handler.Ref(), never by kind.
// - Every failed invocation is reported as an *Error with one of the
//   ErrorKind values.
package tool
