// Package cli implements the interactive operator console of the relay.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/sanicball-project/sanicrelay/internal/config"
	"github.com/sanicball-project/sanicrelay/internal/server"
)

// Relay is the part of the relay server the console drives.
type Relay interface {
	Snapshot() server.Snapshot
	Say(text string) error
	SetMOTD(text string) error
}

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg   *config.Config
	relay Relay
	quit  func()
	in    io.Reader
	out   io.Writer
}

// NewCLI creates a console reading commands from in and writing to out.
// quit is called when the operator asks the relay to stop.
func NewCLI(cfg *config.Config, relay Relay, quit func(), in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:   cfg,
		relay: relay,
		quit:  quit,
		in:    in,
		out:   out,
	}
}

// Start runs the console until ctx is cancelled or input ends.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nsanicrelay console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("console input failed")
		}
	}()

	for {
		fmt.Fprint(c.out, "sanicrelay> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			if err := c.execute(strings.ToLower(parts[0]), parts[1:]); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		}
	}
}

// execute processes a single console command.
func (c *CLI) execute(cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "clients":
		c.printClients()
	case "players", "p":
		c.printPlayers()
	case "settings":
		c.printSettings()
	case "say":
		return c.cmdSay(args)
	case "motd":
		return c.cmdMOTD(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down sanicrelay...")
		if c.quit != nil {
			c.quit()
		}
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
  status           Show match phase and roster size
  clients          List connected clients
  players          List players
  settings         Show the current match settings
  say <text>       Send a server chat line to every client
  motd [text]      Show or replace the message of the day
  quit             Stop the relay
  help             Show this help message`)
}

func (c *CLI) newTable(header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (c *CLI) printStatus() {
	snap := c.relay.Snapshot()

	tw := c.newTable("Phase", "In Race", "Countdown", "Clients", "Players", "Uptime")
	tw.Append([]string{
		snap.Phase.String(),
		strconv.FormatBool(snap.InRace),
		strconv.Itoa(int(snap.Countdown)),
		strconv.Itoa(len(snap.Clients)),
		strconv.Itoa(len(snap.Players)),
		(time.Duration(snap.Uptime) * time.Second).String(),
	})
	tw.Render()
	fmt.Fprintf(c.out, "MOTD: %s\n", snap.MOTD)
}

func (c *CLI) printClients() {
	snap := c.relay.Snapshot()
	if len(snap.Clients) == 0 {
		fmt.Fprintln(c.out, "No clients connected")
		return
	}

	tw := c.newTable("GUID", "Name", "Address", "Seq")
	for _, cl := range snap.Clients {
		tw.Append([]string{cl.GUID, cl.Name, cl.Addr, strconv.Itoa(int(cl.Sequence))})
	}
	tw.Render()
}

func (c *CLI) printPlayers() {
	snap := c.relay.Snapshot()
	if len(snap.Players) == 0 {
		fmt.Fprintln(c.out, "No players")
		return
	}

	tw := c.newTable("GUID", "Controller", "Character", "Ready", "Racing")
	for _, p := range snap.Players {
		tw.Append([]string{
			p.GUID,
			p.CtrlType,
			strconv.Itoa(int(p.CharacterID)),
			strconv.FormatBool(p.Ready),
			strconv.FormatBool(p.Racing),
		})
	}
	tw.Render()
}

func (c *CLI) printSettings() {
	s := c.relay.Snapshot().Settings

	tw := c.newTable("Setting", "Value")
	tw.AppendBulk([][]string{
		{"stage", strconv.Itoa(int(s.StageID))},
		{"laps", strconv.Itoa(int(s.Laps))},
		{"ai count", strconv.Itoa(int(s.AICount))},
		{"ai skill", strconv.Itoa(int(s.AISkill))},
		{"auto start", fmt.Sprintf("%ds (min %d players)", s.AutoStartTime, s.AutoStartMinPlayers)},
		{"auto return", fmt.Sprintf("%ds", s.AutoReturnTime)},
		{"vote ratio", strconv.FormatFloat(float64(s.VoteRatio), 'f', 2, 32)},
		{"stage rotation", strconv.Itoa(int(s.StageRotationMode))},
	})
	tw.Render()
}

func (c *CLI) cmdSay(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: say <text>")
	}
	text := strings.Join(args, " ")
	if err := c.relay.Say(text); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Sent: %s\n", text)
	return nil
}

func (c *CLI) cmdMOTD(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "MOTD: %s\n", c.relay.Snapshot().MOTD)
		return nil
	}

	text := strings.Join(args, " ")
	if err := c.relay.SetMOTD(text); err != nil {
		return err
	}
	c.cfg.SetMOTD(text)
	if err := c.cfg.Save(); err != nil {
		return fmt.Errorf("motd applied but not saved: %w", err)
	}
	fmt.Fprintf(c.out, "MOTD updated: %s\n", text)
	return nil
}
