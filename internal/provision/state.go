package provision

// State is a step of a provisioning run.
type State string

const (
	StateCheckCache      State = "CheckCache"
	StateResolvePlatform State = "ResolvePlatform"
	StateAcquireLock     State = "AcquireLock"
	StateFetchRelease    State = "FetchRelease"
	StateSelectAsset     State = "SelectAsset"
	StateDownload        State = "Download"
	StateVerify          State = "Verify"
	StateInstall         State = "Install"
	StateDone            State = "Done"
	StateFailed          State = "Failed"
)

// Event is one state transition reported during a run.
type Event struct {
	RunID   string
	State   State
	Message string
	// Err is set only for StateFailed and is a *Failure.
	Err error
}

// Reporter observes state transitions. Reporters cannot influence the run.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f(e).
func (f ReporterFunc) Report(e Event) { f(e) }

type noopReporter struct{}

func (noopReporter) Report(Event) {}
