// Package config parses the server's command-line flags, following the
// teacher's main.go pattern of binding flag.StringVar directly onto a
// config struct's fields, generalized to the full flag set this server
// needs.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// Config holds every startup-only setting.
type Config struct {
	Port       int
	Dir        string
	Dbfilename string
	ReplicaOf  string // "<host> <port>", empty if this instance is a master
}

// ReplicaOfAddr splits ReplicaOf into a dialable "host:port", and
// reports false if this instance is not configured as a replica.
func (c Config) ReplicaOfAddr() (addr string, ok bool) {
	if c.ReplicaOf == "" {
		return "", false
	}
	fields := strings.Fields(c.ReplicaOf)
	if len(fields) != 2 {
		return "", false
	}
	return fields[0] + ":" + fields[1], true
}

// Parse reads argv (excluding the program name, i.e. os.Args[1:]) into
// a Config, applying defaults for anything not set.
func Parse(argv []string) (Config, error) {
	var c Config
	fs := flag.NewFlagSet("redisd", flag.ContinueOnError)
	fs.IntVar(&c.Port, "port", 6379, "TCP port to listen on")
	fs.StringVar(&c.Dir, "dir", "", "the directory in which the RDB file resides")
	fs.StringVar(&c.Dbfilename, "dbfilename", "", "the name of the RDB file")
	fs.StringVar(&c.ReplicaOf, "replicaof", "", `configure as a replica of "<host> <port>"`)

	if err := fs.Parse(argv); err != nil {
		return Config{}, err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return Config{}, fmt.Errorf("config: invalid port %d", c.Port)
	}
	if _, ok := c.ReplicaOfAddr(); c.ReplicaOf != "" && !ok {
		return Config{}, fmt.Errorf("config: --replicaof must be \"<host> <port>\", got %q", c.ReplicaOf)
	}
	return c, nil
}

// Addr returns the gnet-style listen address for Port.
func (c Config) Addr() string {
	return "tcp://:" + strconv.Itoa(c.Port)
}
