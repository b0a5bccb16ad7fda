package main

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"teavpn/internal/client"
	"teavpn/internal/config"
	"teavpn/internal/server"
	"teavpn/internal/vlog"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "teavpn"
	myApp.Usage = "user-space point-to-multipoint layer-3 VPN"
	myApp.Version = VERSION
	myApp.Commands = []cli.Command{
		serverCommand(),
		connectCommand(),
	}
	if err := myApp.Run(os.Args); err != nil {
		checkError(err)
	}
}

func serverCommand() cli.Command {
	return cli.Command{
		Name:  "server",
		Usage: "run the TeaVPN server",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "address", Value: config.DefaultBindAddr, Usage: "listen address"},
			cli.IntFlag{Name: "port", Value: config.DefaultBindPort, Usage: "listen port"},
			cli.IntFlag{Name: "threads", Value: config.DefaultThreads, Usage: "writer worker count, floored to 3"},
			cli.StringFlag{Name: "config", Usage: "path to a key=value config file, overrides flag defaults"},
			cli.StringFlag{Name: "error-log", Usage: "also write log output to this file (stderr keeps receiving it)"},
			cli.IntFlag{Name: "verbose", Usage: "verbosity level gating debug log lines"},
			cli.StringFlag{Name: "dev", Value: config.DefaultDev, Usage: "TUN device name"},
			cli.BoolFlag{Name: "compress", Usage: "has no effect: the server does not wrap client connections in snappy compression"},
			cli.StringFlag{Name: "snmplog", Usage: "path to append periodic CSV counter rows to, supports time.Format layout components"},
			cli.IntFlag{Name: "snmpperiod", Value: 60, Usage: "seconds between snmplog rows"},
		},
		Action: runServer,
	}
}

func connectCommand() cli.Command {
	return cli.Command{
		Name:  "connect",
		Usage: "run the TeaVPN client",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "address,server-ip", Usage: "server address"},
			cli.IntFlag{Name: "port", Value: config.DefaultBindPort, Usage: "server port"},
			cli.StringFlag{Name: "config", Usage: "path to a key=value config file, overrides flag defaults"},
			cli.StringFlag{Name: "error-log", Usage: "also write log output to this file (stderr keeps receiving it)"},
			cli.IntFlag{Name: "verbose", Usage: "verbosity level gating debug log lines"},
			cli.StringFlag{Name: "dev", Value: config.DefaultDev, Usage: "TUN device name"},
			cli.StringFlag{Name: "username", Usage: "account username"},
			cli.StringFlag{Name: "password", Usage: "account password"},
			cli.BoolFlag{Name: "compress", Usage: "wrap the server connection in snappy compression"},
			cli.StringFlag{Name: "snmplog", Usage: "path to append periodic CSV counter rows to, supports time.Format layout components"},
			cli.IntFlag{Name: "snmpperiod", Value: 60, Usage: "seconds between snmplog rows"},
		},
		Action: runConnect,
	}
}

func runServer(c *cli.Context) error {
	setupErrorLog(c.String("error-log"))
	vlog.SetLevel(c.Int("verbose"))

	cfg := config.NewServer()
	cfg.BindAddr = c.String("address")
	cfg.BindPort = c.Int("port")
	cfg.Threads = c.Int("threads")
	cfg.Dev = c.String("dev")

	if path := c.String("config"); path != "" {
		kv, err := config.ParseFile(path)
		if err != nil {
			checkError(err)
		}
		if err := cfg.ApplyServer(kv); err != nil {
			checkError(err)
		}
	}
	if cfg.Threads < config.MinThreads {
		color.Red("teavpn: --threads %d is below the enforced minimum of %d; flooring", cfg.Threads, config.MinThreads)
		cfg.Threads = config.NormalizeThreads(cfg.Threads)
	}
	if err := cfg.Validate(); err != nil {
		checkError(err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		checkError(err)
	}
	srv.StartSNMPLogger(c.String("snmplog"), time.Duration(c.Int("snmpperiod"))*time.Second)
	return srv.Run()
}

func runConnect(c *cli.Context) error {
	setupErrorLog(c.String("error-log"))
	vlog.SetLevel(c.Int("verbose"))

	cfg := config.NewClient()
	cfg.ServerIP = c.String("address")
	cfg.ServerPort = c.Int("port")
	cfg.Dev = c.String("dev")
	cfg.Username = c.String("username")
	cfg.Password = c.String("password")

	if path := c.String("config"); path != "" {
		kv, err := config.ParseFile(path)
		if err != nil {
			checkError(err)
		}
		if err := cfg.ApplyClient(kv); err != nil {
			checkError(err)
		}
	}
	if err := cfg.Validate(); err != nil {
		checkError(err)
	}

	cl, err := client.New(cfg, c.Bool("compress"))
	if err != nil {
		checkError(err)
	}
	cl.StartSNMPLogger(c.String("snmplog"), time.Duration(c.Int("snmpperiod"))*time.Second)
	return cl.Run()
}

func setupErrorLog(path string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		checkError(err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
}

// checkError logs a fully wrapped error and exits with the code §6
// requires for any initialization or configuration failure.
func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
