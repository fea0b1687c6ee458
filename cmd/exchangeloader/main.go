package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/milkywaybrain/exchangeloader/internal/config"
	"github.com/milkywaybrain/exchangeloader/internal/initializer"
)

func main() {
	// Load config file values.
	// Default path for file is ./config.json.
	cfgPath := flag.String("config", "./config.json", "configuration JSON file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Println("Error loading config from:", *cfgPath)
		fmt.Println(err)
		fmt.Println("exiting the app")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the app.
	err = initializer.Start(ctx, cfg)
	if err != nil {
		fmt.Println(err)
		fmt.Println("exiting the app")
		stop()
		os.Exit(1)
	}
}
