// Package console is an interactive register console for bring-up.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/itohio/goads/pkg/ads"
)

var (
	errUsage   = errors.New("usage")
	errUnknown = errors.New("unknown command")
	errQuit    = errors.New("quit")
)

type command struct {
	usage string
	run   func(args []string) error
}

// Console executes text commands against one device.
type Console struct {
	dev      *ads.Device
	out      io.Writer
	commands map[string]command
}

// New creates a console writing responses to out.
func New(dev *ads.Device, out io.Writer) *Console {
	c := &Console{dev: dev, out: out}
	c.commands = map[string]command{
		"show":     {"show", c.show},
		"get":      {"get <field>", c.get},
		"set":      {"set <field> <value>", c.set},
		"reg":      {"reg <ptr> [value]", c.reg},
		"start":    {"start", c.start},
		"read":     {"read", c.read},
		"status":   {"status", c.status},
		"buffer":   {"buffer", c.buffer},
		"filter":   {"filter <none|average|savgol> [order]", c.filter},
		"thresh":   {"thresh <low|high> <bit> <0|1>", c.thresh},
		"pinready": {"pinready <on|off> [queue]", c.pinReady},
		"default":  {"default", c.setDefault},
		"help":     {"help", c.help},
	}
	return c
}

// Execute runs one command line.
func (c *Console) Execute(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("failed to parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return nil
	}
	name := strings.ToLower(args[0])
	if name == "quit" || name == "exit" {
		return errQuit
	}
	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknown, args[0])
	}
	if err := cmd.run(args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("%w: %s", errUsage, cmd.usage)
		}
		return err
	}
	return nil
}

// Run reads commands from r until EOF or quit. Command errors are printed and
// do not stop the loop.
func (c *Console) Run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		err := c.Execute(scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) show(args []string) error {
	c.printf("%s", c.dev.ConfigString())
	c.printf("filter=%s savgol_order=%d conversion=%s pin_ready=%t",
		c.dev.FilterStatus(), c.dev.SavGolOrder(), c.dev.Conversion().Kind(), c.dev.PinReadyMode())
	return nil
}

type field struct {
	get func(d *ads.Device) fmt.Stringer
	set func(d *ads.Device, v string) error
}

var fields = map[string]field{
	"mux": {
		func(d *ads.Device) fmt.Stringer { return d.Mux() },
		func(d *ads.Device, v string) error {
			m, err := ads.ParseMux(v)
			if err != nil {
				return err
			}
			return d.SetMux(m)
		},
	},
	"gain": {
		func(d *ads.Device) fmt.Stringer { return d.Gain() },
		func(d *ads.Device, v string) error {
			g, err := ads.ParseGain(v)
			if err != nil {
				return err
			}
			return d.SetGain(g)
		},
	},
	"mode": {
		func(d *ads.Device) fmt.Stringer { return d.Mode() },
		func(d *ads.Device, v string) error {
			m, err := ads.ParseMode(v)
			if err != nil {
				return err
			}
			return d.SetMode(m)
		},
	},
	"rate": {
		func(d *ads.Device) fmt.Stringer { return d.DataRate() },
		func(d *ads.Device, v string) error {
			r, err := ads.ParseDataRate(v)
			if err != nil {
				return err
			}
			return d.SetDataRate(r)
		},
	},
	"comp_mode": {
		func(d *ads.Device) fmt.Stringer { return d.CompMode() },
		func(d *ads.Device, v string) error {
			m, err := ads.ParseCompMode(v)
			if err != nil {
				return err
			}
			return d.SetCompMode(m)
		},
	},
	"comp_pol": {
		func(d *ads.Device) fmt.Stringer { return d.CompPolarity() },
		func(d *ads.Device, v string) error {
			p, err := ads.ParseCompPolarity(v)
			if err != nil {
				return err
			}
			return d.SetCompPolarity(p)
		},
	},
	"comp_latch": {
		func(d *ads.Device) fmt.Stringer { return d.CompLatch() },
		func(d *ads.Device, v string) error {
			l, err := ads.ParseCompLatch(v)
			if err != nil {
				return err
			}
			return d.SetCompLatch(l)
		},
	},
	"comp_queue": {
		func(d *ads.Device) fmt.Stringer { return d.CompQueue() },
		func(d *ads.Device, v string) error {
			q, err := ads.ParseCompQueue(v)
			if err != nil {
				return err
			}
			return d.SetCompQueue(q)
		},
	},
}

func fieldNames() string {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

func (c *Console) get(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if args[0] == "thresholds" {
		lo, hi := c.dev.Thresholds()
		c.printf("low=%d high=%d", lo, hi)
		return nil
	}
	f, ok := fields[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s (fields: %s thresholds)", ads.ErrInvalidField, args[0], fieldNames())
	}
	c.printf("%s=%s", args[0], f.get(c.dev))
	return nil
}

func (c *Console) set(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	if args[0] == "thresholds" {
		if len(args) != 3 {
			return errUsage
		}
		lo, err := strconv.ParseInt(args[1], 0, 16)
		if err != nil {
			return err
		}
		hi, err := strconv.ParseInt(args[2], 0, 16)
		if err != nil {
			return err
		}
		return c.dev.SetThresholds(int16(lo), int16(hi))
	}
	if len(args) != 2 {
		return errUsage
	}
	f, ok := fields[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s (fields: %s thresholds)", ads.ErrInvalidField, args[0], fieldNames())
	}
	if err := f.set(c.dev, args[1]); err != nil {
		return err
	}
	c.printf("%s=%s", args[0], f.get(c.dev))
	return nil
}

func (c *Console) reg(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	ptr, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return err
	}
	if len(args) == 2 {
		v, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			return err
		}
		return c.dev.SetRegisterValue(uint8(ptr), uint16(v))
	}
	v, err := c.dev.RegisterValue(uint8(ptr))
	if err != nil {
		return err
	}
	c.printf("reg 0x%02X = 0x%04X", ptr, v)
	return nil
}

func (c *Console) start(args []string) error {
	return c.dev.StartSingleShot()
}

func (c *Console) read(args []string) error {
	raw, err := c.dev.ReadConversion()
	if err != nil {
		return err
	}
	v, err := c.dev.Voltage()
	if err != nil {
		return err
	}
	p, err := c.dev.Physical()
	if err != nil {
		return err
	}
	c.printf("raw=%d voltage=%.6f physical=%.6f", raw, v, p)
	return nil
}

func (c *Console) status(args []string) error {
	idle, err := c.dev.OpStatus()
	if err != nil {
		return err
	}
	ready, err := c.dev.ConversionReady()
	if err != nil {
		return err
	}
	c.printf("idle=%t ready=%t fill=%d/%d frozen=%t connected=%t",
		idle, ready, c.dev.BufferFill(), c.dev.BufferCap(), c.dev.IsValueFrozen(), c.dev.ConnectionStatus())
	return nil
}

func (c *Console) buffer(args []string) error {
	c.printf("%v", c.dev.Buffer())
	return nil
}

func (c *Console) filter(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	f, err := ads.ParseFilter(args[0])
	if err != nil {
		return err
	}
	if len(args) == 2 {
		order, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		if err := c.dev.SetSavGolOrder(order); err != nil {
			return err
		}
	}
	if f == ads.FilterNone {
		c.dev.DeactivateFilter()
		return nil
	}
	return c.dev.ActivateFilter(f)
}

func (c *Console) thresh(args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	bit, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	set := args[2] == "1"
	if !set && args[2] != "0" {
		return errUsage
	}
	switch args[0] {
	case "low":
		return c.dev.SetLowThreshBit(bit, set)
	case "high":
		return c.dev.SetHighThreshBit(bit, set)
	}
	return errUsage
}

func (c *Console) pinReady(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	queue := ads.CompQueue1
	if len(args) == 2 {
		q, err := ads.ParseCompQueue(args[1])
		if err != nil {
			return err
		}
		queue = q
	}
	switch args[0] {
	case "on":
		return c.dev.SetPinReadyMode(true, queue)
	case "off":
		return c.dev.SetPinReadyMode(false, queue)
	}
	return errUsage
}

func (c *Console) setDefault(args []string) error {
	return c.dev.SetDefault()
}

func (c *Console) help(args []string) error {
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c.printf("  %s", c.commands[n].usage)
	}
	c.printf("  quit")
	return nil
}
