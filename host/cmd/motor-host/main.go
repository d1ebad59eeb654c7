// motor-host configures the motors described in motor.yaml and drives them
// from an interactive shell or a -exec script.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"gomotor/host/config"
	"gomotor/host/mcu"
	"gomotor/host/serial"
)

var (
	configPath = flag.String("config", "", "motor.yaml path (default $MOTOR_CONFIG or ./motor.yaml)")
	device     = flag.String("device", "", "serial device, overrides the config file")
	script     = flag.String("exec", "", "run semicolon-separated commands and exit")
	verbose    = flag.Bool("verbose", false, "log protocol activity")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if *device != "" {
		cfg.Device = *device
	}

	m := mcu.NewMCU()
	if *verbose {
		m.Logger = log.New(os.Stderr, "mcu: ", log.Ltime|log.Lmicroseconds)
	}
	sc := serial.DefaultConfig(cfg.Device)
	sc.Baud = cfg.Baud
	if err := m.ConnectWithConfig(sc); err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = m.RetrieveDictionary(ctx)
	cancel()
	if err != nil {
		log.Fatalf("dictionary: %v", err)
	}

	m.OnShutdown(func(clock uint32, reason string) {
		log.Printf("MCU shutdown at clock %d: %s", clock, reason)
	})
	if *verbose {
		m.OnEncoderState(func(oid uint8, clock uint32, count int32) {
			log.Printf("encoder %d @%d: %d", oid, clock, count)
		})
	}

	con := newConsole(m, cfg, os.Stdout)
	if err := con.configure(context.Background()); err != nil {
		log.Fatal(err)
	}

	if *script != "" {
		if err := con.runScript(*script); err != nil {
			log.Fatal(err)
		}
		return
	}
	runShell(con)
}

// loadConfig reads -config, else $MOTOR_CONFIG, else ./motor.yaml. A
// missing default file falls back to built-in settings with no motors.
func loadConfig() (*config.Config, error) {
	path := *configPath
	if path == "" {
		path = config.Path()
		if _, err := os.Stat(path); os.IsNotExist(err) && path == config.DefaultPath {
			log.Printf("%s not found, no motors configured", path)
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func runShell(con *console) {
	shell := ishell.New()
	shell.Println("motor-host: " + strings.Join(usageLines(), ", "))

	for name, cmd := range commands {
		name := name
		shell.AddCmd(&ishell.Cmd{
			Name: name,
			Help: cmd.help,
			Func: func(c *ishell.Context) {
				if err := con.exec(append([]string{name}, c.Args...)); err != nil {
					c.Err(err)
				}
			},
		})
	}
	shell.AddCmd(&ishell.Cmd{
		Name: "run",
		Help: "run <cmd; cmd; ...>",
		Func: func(c *ishell.Context) {
			if err := con.runScript(strings.Join(c.Args, " ")); err != nil {
				c.Err(err)
			}
		},
	})

	shell.Run()
	// leave nothing spinning when the shell exits
	_ = con.exec([]string{"stop"})
}
