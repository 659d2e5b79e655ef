// Package harness runs one effect-yielding process against a simulated
// environment and verifies the effects it emitted against declared
// expectations.
//
// A run has three phases. During authoring the caller registers tasks
// and handlers, declares expectations, provides state, and queues
// inputs. Start launches the process; while it runs, every yielded
// effect is classified and recorded, forks are correlated to child
// tasks, and queued inputs are delivered one per scheduling tick
// whenever the process blocks waiting. Stop drains all outstanding
// work (with an advisory timeout), cancels the process tree, and
// settles the run: a process failure wins over any expectation
// diagnostic, otherwise the ledger is checked fail-fast in declaration
// order.
package harness
