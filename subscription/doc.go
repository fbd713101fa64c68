// Package subscription runs Event Subscriptions: it reads Events from an
// Event log, sends them through a consume.Pipeline, and checkpoints the
// progress of the Subscription as the Events get acknowledged.
//
// Choose the Reader that is suited to your Event processor.
// CatchUp readers are the most commonly used type, especially for
// Projections or Process Managers, since they resume from the last
// Checkpoint persisted.
//
// Volatile readers might be used for volatile Projections,
// e.g. when process restarts should erase the previous Projection value,
// typical for instance summaries or metrics recording.
package subscription
