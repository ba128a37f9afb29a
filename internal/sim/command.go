package sim

import "github.com/greylag/landgrab/server/internal/geo"

// CommandKind identifies a queued player command.
type CommandKind string

const (
	CmdJoin           CommandKind = "join"
	CmdFound          CommandKind = "found"
	CmdBuildCity      CommandKind = "buildCity"
	CmdBuildStructure CommandKind = "buildStructure"
	CmdArrow          CommandKind = "arrow"
	CmdClearArrow     CommandKind = "clearArrow"
	CmdSettings       CommandKind = "settings"
	CmdQuit           CommandKind = "quit"
)

// Command is a validated player command waiting for the next tick. Commands
// are validated synchronously at intake; the updater re-checks only the
// conditions that can change between intake and application and silently
// drops commands that no longer apply.
type Command struct {
	Kind   CommandKind
	UserID string

	X, Y int

	CityType string
	CityName string

	StructureType string

	ArrowType string
	Path      []geo.Coord
	Percent   float64

	TroopTarget   *float64
	AttackPercent *float64
	AutoCity      *bool
}
