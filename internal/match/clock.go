package match

import "time"

// Clock is the set of named timers driven by the relay loop.
type Clock struct {
	Uptime           *Timer
	ServerListPing   *Timer
	Lobby            *Timer
	AutoStart        *Timer
	StageLoadTimeout *Timer
	BackToLobby      *Timer
}

// NewClock returns a clock whose uptime timer is already running.
func NewClock(now func() time.Time) *Clock {
	c := &Clock{
		Uptime:           NewTimer(now),
		ServerListPing:   NewTimer(now),
		Lobby:            NewTimer(now),
		AutoStart:        NewTimer(now),
		StageLoadTimeout: NewTimer(now),
		BackToLobby:      NewTimer(now),
	}
	c.Uptime.Start()
	return c
}

// Seconds returns the server clock reading stamped into outbound frames.
func (c *Clock) Seconds() float32 {
	return float32(c.Uptime.Elapsed().Seconds())
}
