// Package reactive implements the fine-grained reactive primitives the
// zengrid store is built on: writable signals, lazily cached memos, and
// effects, all tracked through an explicit Engine value.
//
// The Engine owns the dependency-tracking state (current listener,
// evaluation stack, batch depth, pending notifications). Constructing a
// fresh Engine gives a fully isolated reactive world, which is how each
// store instance stays independent without module-level globals.
//
// Reading a Signal or Memo inside a tracked computation (a memo
// recomputation or an effect body) subscribes the computation to the cell;
// writing a Signal notifies subscribers, or queues them when a Batch is
// open. Evaluation state on the Engine is not synchronized: all tracked
// evaluation must happen on a single goroutine (the store's dispatch
// loop). The cells themselves are safe to read from any goroutine.
package reactive
