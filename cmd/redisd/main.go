// Command redisd runs the key-value server: parses flags, loads any RDB
// snapshot present in --dir/--dbfilename, performs a replication
// handshake if --replicaof is set, then serves RESP2 clients on --port.
package main

import (
	"log"
	"os"
	"time"

	"github.com/kvsrv/redisd/internal/blocked"
	"github.com/kvsrv/redisd/internal/config"
	"github.com/kvsrv/redisd/internal/exec"
	"github.com/kvsrv/redisd/internal/rdb"
	"github.com/kvsrv/redisd/internal/reactor"
	"github.com/kvsrv/redisd/internal/replica"
	"github.com/kvsrv/redisd/internal/store"
)

func main() {
	logger := log.New(os.Stderr, "redisd ", log.LstdFlags)

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Fatal(err)
	}

	ks := store.New(nil)
	if err := rdb.Load(ks, cfg.Dir, cfg.Dbfilename, logger); err != nil {
		logger.Fatalf("rdb: %v", err)
	}

	if masterAddr, ok := cfg.ReplicaOfAddr(); ok {
		logger.Printf("replicating from %s", masterAddr)
		if err := replica.Handshake(masterAddr, cfg.Port, 5*time.Second); err != nil {
			logger.Fatalf("replica handshake: %v", err)
		}
		logger.Println("replica handshake complete")
	}

	e := &exec.Executor{
		KS:      ks,
		Blocked: blocked.New(),
		Config:  store.Config{Dir: cfg.Dir, Dbfilename: cfg.Dbfilename},
		Now:     time.Now,
	}

	srv := reactor.New(e, logger)
	logger.Printf("listening on %s", cfg.Addr())
	if err := srv.Serve(cfg.Addr()); err != nil {
		logger.Fatal(err)
	}
}
