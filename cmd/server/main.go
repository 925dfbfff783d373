package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"simple-kv/pkg/config"
	"simple-kv/pkg/engines"
	"simple-kv/pkg/logger"
	"simple-kv/pkg/protos"
	"simple-kv/pkg/stores"
)

var opts struct {
	Host  string `value-name:"host" short:"H" long:"host" default:"localhost" description:"simple-kv server host"`
	Port  string `value-name:"port" short:"p" long:"port" default:"8081" description:"simple-kv server port"`
	Store string `value-name:"store" short:"s" long:"store" default:"memory" choice:"memory" choice:"pebble" description:"storage engine"`
	Dir   string `value-name:"dir" short:"d" long:"dir" default:"simple-kv-data" description:"data directory of the pebble store"`
	Debug bool   `long:"debug" description:"log every lock grant and release"`
}

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		if flags.WroteHelp(err) {
			return
		} else {
			panic(err)
		}
	}

	if opts.Debug {
		if err = logger.SetDevelopment(); err != nil {
			panic(err)
		}
	}
	defer logger.Sync()

	store, err := stores.Open(config.StoreKind(opts.Store), opts.Dir)
	if err != nil {
		logger.Inst.Fatalw("fail to open store", "store", opts.Store, "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := protos.NewServer(opts.Host, opts.Port, engines.NewEngine(store))
	if err = server.Listen(); err != nil {
		logger.Inst.Fatalw("fail to listen", "err", err)
	}
	go func() {
		<-ctx.Done()
		if err := server.Close(); err != nil {
			logger.Inst.Errorw("fail to close server", "err", err)
		}
	}()

	if err = server.Run(ctx); err != nil {
		logger.Inst.Errorw("server stopped", "err", err)
	}
}
