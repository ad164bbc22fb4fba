// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/classroomlive/sessionengine/internal/app"
)

var version = "0.1.0"

func main() {
	var (
		host        string
		port        int
		showVersion bool
	)

	flag.StringVar(&host, "host", "", "HTTP server host")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides PORT)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.Parse()

	if showVersion {
		fmt.Printf("sessionengine %s\n", version)
		os.Exit(0)
	}

	application, err := app.New(app.Options{Host: host, Port: port, Version: version})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("App error: %v", err)
	}
}
