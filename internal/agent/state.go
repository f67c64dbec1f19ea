package agent

// State is the session lifecycle position.
type State int

const (
	StateIdle State = iota
	StateFetchingServerDirectory
	StateGettingDashboardLinks
	StateGettingToken
	StateConnecting
	StateAwaitingHello
	StateInGame
	StateRedirecting
	StateDisconnected
)

var stateNames = [...]string{
	"Idle",
	"FetchingServerDirectory",
	"GettingDashboardLinks",
	"GettingToken",
	"Connecting",
	"AwaitingHello",
	"InGame",
	"Redirecting",
	"Disconnected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}
