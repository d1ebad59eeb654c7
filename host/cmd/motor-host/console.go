package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"gomotor/host/config"
	"gomotor/host/mcu"
)

// link is the part of *mcu.MCU the console drives
type link interface {
	mcu.Configurer
	Drive(oid uint8, speed float64) error
	Stop(oid uint8) error
	EmergencyStop() error
	QueryMotor(ctx context.Context, oid uint8) (mcu.MotorState, error)
	QueryEncoder(ctx context.Context, oid uint8) (int32, error)
	Clock(ctx context.Context) (uint32, error)
	Dictionary() *mcu.Dictionary
	CommandNames() []string
}

var errUsage = errors.New("usage")

type command struct {
	help string
	run  func(c *console, args []string) error
}

var commands = map[string]command{
	"drive": {"drive <oid> <speed -1..1>", (*console).drive},
	"stop":  {"stop [oid]  (all motors without oid)", (*console).stop},
	"count": {"count <encoder oid>", (*console).count},
	"state": {"state <motor oid>", (*console).state},
	"clock": {"clock", (*console).clock},
	"dict":  {"dict", (*console).dict},
	"estop": {"estop", (*console).estop},
	"sleep": {"sleep <ms>", (*console).sleep},
}

// console runs motor commands against one MCU
type console struct {
	mcu     link
	cfg     *config.Config
	out     io.Writer
	timeout time.Duration
}

func newConsole(m link, cfg *config.Config, out io.Writer) *console {
	return &console{mcu: m, cfg: cfg, out: out, timeout: 2 * time.Second}
}

// configure sends config_motor/config_encoder for every configured motor
func (c *console) configure(ctx context.Context) error {
	return mcu.Configure(ctx, c.mcu, c.cfg.Motors)
}

// exec runs one command line already split into words
func (c *console) exec(args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	if err := cmd.run(c, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("usage: %s", cmd.help)
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// runScript runs semicolon-separated commands, stopping at the first error
func (c *console) runScript(script string) error {
	for _, line := range strings.Split(script, ";") {
		words, err := shlex.Split(line)
		if err != nil {
			return fmt.Errorf("%q: %w", line, err)
		}
		if err := c.exec(words); err != nil {
			return err
		}
	}
	return nil
}

func (c *console) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

func parseOID(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("oid %q: %w", s, err)
	}
	return uint8(v), nil
}

func (c *console) drive(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	speed, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("speed %q: %w", args[1], err)
	}
	return c.mcu.Drive(oid, speed)
}

func (c *console) stop(args []string) error {
	switch len(args) {
	case 0:
		for _, m := range c.cfg.Motors {
			if err := c.mcu.Stop(m.OID); err != nil {
				return err
			}
		}
		return nil
	case 1:
		oid, err := parseOID(args[0])
		if err != nil {
			return err
		}
		return c.mcu.Stop(oid)
	}
	return errUsage
}

func (c *console) count(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx()
	defer cancel()
	n, err := c.mcu.QueryEncoder(ctx, oid)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "encoder %d: %d\n", oid, n)
	return nil
}

func (c *console) state(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	oid, err := parseOID(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx()
	defer cancel()
	st, err := c.mcu.QueryMotor(ctx, oid)
	if err != nil {
		return err
	}
	dir := "coast"
	switch {
	case st.Forward:
		dir = "forward"
	case st.Reverse:
		dir = "reverse"
	}
	fmt.Fprintf(c.out, "motor %d: %s duty=%d\n", oid, dir, st.Duty)
	return nil
}

func (c *console) clock(args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	ctx, cancel := c.ctx()
	defer cancel()
	now, err := c.mcu.Clock(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "clock %d\n", now)
	return nil
}

func (c *console) dict(args []string) error {
	d := c.mcu.Dictionary()
	if d == nil {
		return mcu.ErrNoDictionary
	}
	fmt.Fprintf(c.out, "version %s\n", d.Version)
	keys := make([]string, 0, len(d.Config))
	for k := range d.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(c.out, "  %s = %s\n", k, d.Config[k])
	}
	fmt.Fprintf(c.out, "commands: %s\n", strings.Join(c.mcu.CommandNames(), " "))
	return nil
}

func (c *console) estop(args []string) error {
	return c.mcu.EmergencyStop()
}

func (c *console) sleep(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ms, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return err
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return nil
}

func usageLines() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = commands[n].help
	}
	return lines
}
