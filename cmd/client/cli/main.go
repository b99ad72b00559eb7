package main

import (
	"context"
	"log"
	"os"

	"github.com/indexcp/indexcp/internal/client/cli"
	"github.com/indexcp/indexcp/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := cli.Execute(ctx, app); err != nil {
		os.Exit(1)
	}

}
