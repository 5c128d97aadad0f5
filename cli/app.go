// Package cli contains the navigate command line tool.
package cli

import (
	"io"
	"strings"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagConfig    = "config"
	flagDebug     = "debug"
	flagWaypoints = "waypoints"
	flagWaypoint  = "waypoint"
	flagStart     = "start"
	flagStep      = "step"
	flagMaxSteps  = "max-steps"
	flagLag       = "lag"
	flagFlightLog = "flight-log"
	flagBag       = "bag"
	flagRealtime  = "realtime"
)

// waypointArgs collects each --waypoint argument without splitting on commas.
type waypointArgs []string

func (w *waypointArgs) Set(s string) error {
	*w = append(*w, s)
	return nil
}

func (w *waypointArgs) String() string {
	if w == nil {
		return ""
	}
	return strings.Join(*w, " ")
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "navigate",
		Usage:           "fly waypoint trajectories with a PID navigator",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "simulate",
				Usage:     "fly a trajectory with a simulated vehicle",
				UsageText: "navigate simulate [--waypoints FILE | --waypoint x,y,z,yaw ...] [other options]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagWaypoints,
						Usage: "read the trajectory from a json5 `FILE`",
					},
					&cli.GenericFlag{
						Name:  flagWaypoint,
						Usage: "append a waypoint given as x,y,z,yaw (may be repeated)",
						Value: &waypointArgs{},
					},
					&cli.StringFlag{
						Name:  flagStart,
						Usage: "starting pose as x,y,z,yaw",
						Value: "0,0,0,0",
					},
					&cli.DurationFlag{
						Name:  flagStep,
						Usage: "control period and integration step",
					},
					&cli.IntFlag{
						Name:  flagMaxSteps,
						Usage: "give up after this many control cycles",
					},
					&cli.DurationFlag{
						Name:  flagLag,
						Usage: "time constant of the vehicle's velocity response",
					},
					&cli.StringFlag{
						Name:  flagFlightLog,
						Usage: "record the flight to a sqlite `FILE`, overriding the config",
					},
				},
				Action: SimulateAction,
			},
			{
				Name:      "replay",
				Usage:     "feed a recorded rosbag through the navigator",
				UsageText: "navigate replay --bag FILE [other options]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagBag,
						Required: true,
						Usage:    "rosbag `FILE` holding pose and waypoint messages",
					},
					&cli.BoolFlag{
						Name:  flagRealtime,
						Usage: "pace messages at their recorded rate and publish from a live node",
					},
					&cli.StringFlag{
						Name:  flagFlightLog,
						Usage: "record the replay to a sqlite `FILE`, overriding the config",
					},
				},
				Action: ReplayAction,
			},
			{
				Name:   "validate-config",
				Usage:  "check a configuration file and print the resolved values",
				Action: ValidateConfigAction,
			},
		},
		Writer:    out,
		ErrWriter: errOut,
	}
}
