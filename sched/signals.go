package sched

import "github.com/zoobzio/capitan"

// Signal constants for scheduler lifecycle events, following the same
// "<subsystem>.<event>" convention as the policy package's connector
// signals so a listener subscribed by prefix sees every admission
// decision this scheduler makes.
const (
	SignalAdmitted capitan.Signal = "scheduler.admitted"
	SignalQueued   capitan.Signal = "scheduler.queued"
	SignalRejected capitan.Signal = "scheduler.rejected"
	SignalAged     capitan.Signal = "scheduler.aged"
)

// Field keys emitted alongside scheduler signals.
var (
	FieldTaskID       = capitan.NewIntKey("task_id")
	FieldPriority     = capitan.NewIntKey("priority")
	FieldEffective    = capitan.NewIntKey("effective_priority")
	FieldQueueSize    = capitan.NewIntKey("queue_size")
	FieldMaxQueueSize = capitan.NewIntKey("max_queue_size")
	FieldWaitSeconds  = capitan.NewFloat64Key("wait_seconds")
)
