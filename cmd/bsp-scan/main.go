package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/bsp-scan/internal/interface/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ロガーは各コマンドで設定を読み込んだ後に初期化される
	app := cli.NewRootCommand()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
