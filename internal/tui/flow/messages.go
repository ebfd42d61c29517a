package flow

import (
	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/internal/player"
)

// eventMsg carries a controller event into the update loop
type eventMsg struct {
	event player.Event
}

// toggleDoneMsg is sent when a toggle, including any generation, returns
type toggleDoneMsg struct {
	flow meditation.Flow
	err  error
}
