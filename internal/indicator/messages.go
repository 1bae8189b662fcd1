package indicator

import "github.com/rbright/jotter/internal/fsm"

const errorSummary = "Dictation error"

// stateSummaries holds the sticky notification title per capture state.
// States without an entry close the notification.
var stateSummaries = map[fsm.State]string{
	fsm.StateConnecting: "Connecting…",
	fsm.StateListening:  "Listening…",
}
