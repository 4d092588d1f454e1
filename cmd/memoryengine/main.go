// Command memoryengine runs the memory engine unattended: it opens the
// configured stores, starts the background reflection and consolidation
// timers, and blocks until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/synapsevault/memoryengine/internal/engine"
	"github.com/synapsevault/memoryengine/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	eng.StartBackground(ctx)
	fmt.Println("memoryengine running, press ctrl-c to stop")

	<-sigChan
	cancel()
	eng.StopBackground()
}
