package domain

const (
	EventNameSessionStarted       = "session.started"
	EventNameRoundOpened          = "round.opened"
	EventNameRoundResolved        = "round.resolved"
	EventNameCategoriesReshuffled = "categories.reshuffled"
	EventNameSessionFinished      = "session.finished"
	EventNameSnapshotUpdated      = "snapshot.updated"
	EventNameLeaderboardUpdated   = "leaderboard.updated"
)

type EventSessionStarted struct {
	Session Session
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventRoundOpened struct {
	SessionID string
	Round     Round
}

func (EventRoundOpened) Name() string { return EventNameRoundOpened }

type EventRoundResolved struct {
	SessionID string
	Round     Round
	// Total is the player's points after the round.
	Total int
}

func (EventRoundResolved) Name() string { return EventNameRoundResolved }

// EventCategoriesReshuffled is emitted when a player has completed every category
// and the rotator starts offering the full set again.
type EventCategoriesReshuffled struct {
	SessionID string
	Player    string
}

func (EventCategoriesReshuffled) Name() string { return EventNameCategoriesReshuffled }

type EventSessionFinished struct {
	Session Session
	Reason  string
}

func (EventSessionFinished) Name() string { return EventNameSessionFinished }

type EventSnapshotUpdated struct {
	Session Session
}

func (EventSnapshotUpdated) Name() string { return EventNameSnapshotUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
