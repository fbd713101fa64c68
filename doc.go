// Package subscribe contains the building blocks to consume the Events of an
// Event-sourced application, without having to take care of delivery,
// ordering and checkpointing concerns.
//
// The library contains multiple packages, you might want to start from
// `subscription` to run a Subscription on an Event log, and `consume`
// to implement the Handlers and Filters of its Pipeline.
//
// `consume/concurrent` and `consume/partition` allow you to process Events
// concurrently, while `checkpoint` tracks the position of the processed
// Events, using one of the `postgres`, `mongodb` or `firestore` stores.
package subscribe
