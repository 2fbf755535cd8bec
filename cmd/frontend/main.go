// This file starts the ambrystore frontend daemon.
package main

import (
	"flag"
	"net/http"

	"github.com/golang/glog"

	"github.com/ambrystore/frontend/accountdir"
	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/httpapi"
	"github.com/ambrystore/frontend/pipeline"
	"github.com/ambrystore/frontend/router"
	"github.com/ambrystore/frontend/transport"
)

// NOTE: these variables are set by ldflags.
var (
	version string
	build   string
)

var (
	listenAddr    = flag.String("listen", ":8080", "http listen address")
	advertiseHost = flag.String("advertise-host", "localhost", "host this instance advertises in the cluster map")
	advertisePort = flag.Int("advertise-port", 8080, "port this instance advertises in the cluster map")
	accountDBPath = flag.String("account-db", "", "path to the scribble account-directory database; empty runs in-memory only")
	parallelism   = flag.Int("parallelism", 0, "replica fan-out parallelism; 0 keeps the compiled-in default")
)

func main() {
	flag.Parse()
	glog.Infof("ambrystore frontend %s (build %s) starting", version, build)

	if *parallelism > 0 {
		cfg := cmn.GCO.Get()
		cfg.Parallelism = *parallelism
		cmn.GCO.Put(*cfg)
	}

	view := cluster.NewView(0)

	dir, err := openDirectory(*accountDBPath)
	if err != nil {
		glog.Fatalf("frontend: failed opening account directory: %v", err)
	}

	xport := transport.NewClient()
	defer xport.Close()

	core := router.NewCore(view, xport, clock.Real{})
	defer core.Close()

	pipe := pipeline.New(core, dir, view, pipeline.PassthroughGate{}, pipeline.IdentityConverter{}, clock.Real{})
	defer pipe.Stop()

	handler := httpapi.New(pipe, view, *advertiseHost, *advertisePort)

	glog.Infof("frontend: listening on %s", *listenAddr)
	if err := http.ListenAndServe(*listenAddr, handler); err != nil {
		glog.Fatalf("frontend: server exited: %v", err)
	}
}

func openDirectory(path string) (accountdir.Directory, error) {
	mem := accountdir.NewMemDirectory()
	if path == "" {
		return mem, nil
	}
	store, err := accountdir.NewScribbleStore(path, mem)
	if err != nil {
		return nil, err
	}
	if err := store.Reload(); err != nil {
		return nil, err
	}
	return mem, nil
}
