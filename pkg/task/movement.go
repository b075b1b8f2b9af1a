package task

import (
	"encoding/json"
	"errors"

	"github.com/warbandhq/warband/pkg/game"
)

// defaultArrivalTolerance is how close (in yards) a movement task considers
// "arrived". NPC interactions use the wider interactionRange instead.
const (
	defaultArrivalTolerance = 2.0
	interactionRange        = 5.0
)

// MoveToLocationTask paths the bot to a fixed point and waits for arrival.
type MoveToLocationTask struct {
	BaseTask
	x, y, z   float64
	mapID     *int
	tolerance float64

	ordered bool
}

type moveToLocationParams struct {
	commonParams
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Z         float64  `json:"z"`
	MapID     *int     `json:"mapId"`
	Tolerance *float64 `json:"tolerance"`
}

func newMoveToLocation(raw json.RawMessage) (Task, error) {
	var p moveToLocationParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	tol := defaultArrivalTolerance
	if p.Tolerance != nil {
		if *p.Tolerance <= 0 {
			return nil, errors.New("tolerance must be positive")
		}
		tol = *p.Tolerance
	}
	return &MoveToLocationTask{
		BaseTask:  newBase("MoveToLocation", p.commonParams),
		x:         p.X,
		y:         p.Y,
		z:         p.Z,
		mapID:     p.MapID,
		tolerance: tol,
	}, nil
}

func (t *MoveToLocationTask) Start(game.Client) bool {
	t.Begin()
	t.ordered = false
	return true
}

func (t *MoveToLocationTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		dest := game.Position{X: t.x, Y: t.y, Z: t.z}
		if t.mapID != nil {
			dest.MapID = *t.mapID
		} else {
			dest.MapID = c.Position().MapID
		}

		if !t.ordered {
			if err := c.MoveTo(dest); err != nil {
				return t.Failf("cannot path to (%.1f, %.1f, %.1f): %v", t.x, t.y, t.z, err)
			}
			t.ordered = true
			return ResultRunning
		}

		dist := game.Distance(c.Position(), dest)
		if dist <= t.tolerance {
			c.StopMoving()
			return ResultSuccess
		}
		if !c.IsMoving() {
			return t.Failf("movement stopped %.1f yd short of destination", dist)
		}
		return ResultRunning
	})
}

func (t *MoveToLocationTask) Cleanup(c game.Client) {
	c.StopMoving()
}

// MoveToNPCTask paths the bot into interaction range of a named NPC,
// re-pathing if the NPC wanders while the bot is idle.
type MoveToNPCTask struct {
	BaseTask
	npc       string
	tolerance float64
}

type moveToNPCParams struct {
	commonParams
	NPC       string   `json:"npc"`
	Tolerance *float64 `json:"tolerance"`
}

func newMoveToNPC(raw json.RawMessage) (Task, error) {
	var p moveToNPCParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.NPC == "" {
		return nil, errors.New("npc is required")
	}
	tol := interactionRange
	if p.Tolerance != nil {
		if *p.Tolerance <= 0 {
			return nil, errors.New("tolerance must be positive")
		}
		tol = *p.Tolerance
	}
	return &MoveToNPCTask{
		BaseTask:  newBase("MoveToNPC", p.commonParams),
		npc:       p.NPC,
		tolerance: tol,
	}, nil
}

func (t *MoveToNPCTask) Start(game.Client) bool {
	t.Begin()
	return true
}

func (t *MoveToNPCTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		pos, ok := c.NPCPosition(t.npc)
		if !ok {
			return t.Failf("NPC %q not found nearby", t.npc)
		}
		if game.Distance(c.Position(), pos) <= t.tolerance {
			c.StopMoving()
			return ResultSuccess
		}
		if !c.IsMoving() {
			if err := c.MoveTo(pos); err != nil {
				return t.Failf("cannot path to NPC %q: %v", t.npc, err)
			}
		}
		return ResultRunning
	})
}

func (t *MoveToNPCTask) Cleanup(c game.Client) {
	c.StopMoving()
}
