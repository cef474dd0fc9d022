// Command lowly wires configuration loading, the sample store, the RTP/
// MPEG-TS ingest collaborator, and the LL-HLS HTTP server into a runnable
// end-to-end server, in that order, per §11.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dholroyd/lowly/internal/config"
	"github.com/dholroyd/lowly/internal/hls"
	"github.com/dholroyd/lowly/internal/ingest"
	lowlylog "github.com/dholroyd/lowly/internal/log"
	"github.com/dholroyd/lowly/internal/store"
	"github.com/dholroyd/lowly/internal/wallclock"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(fmt.Errorf("lowly: %w", err))
	}
}

func run() error {
	configFlag := flag.String("config", "/etc/lowly/config.yaml", "path to config.yaml")
	flag.Parse()

	configYAML, err := ioutil.ReadFile(*configFlag)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %v: %w", *configFlag, err)
	}

	cfg, err := config.New(configYAML)
	if err != nil {
		return fmt.Errorf("parsing %v: %w", *configFlag, err)
	}

	store.ArchiveLimit = int64(cfg.ArchiveLimitSeconds) * int64(wallclock.Timescale)
	store.VideoSamplesPerPart = cfg.VideoSamplesPerPart
	wallclock.FrameRate = int64(cfg.FrameRate)

	logger := lowlylog.NewLogger()
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go logger.LogToStdout(ctx.Done())

	s := store.New()

	conn, err := net.ListenPacket("udp", cfg.RTPListenAddr)
	if err != nil {
		return fmt.Errorf("opening RTP listener on %v: %w", cfg.RTPListenAddr, err)
	}
	logger.Info().Src("app").Msgf("RTP: listening on %v", cfg.RTPListenAddr)

	// Either collaborator exiting is fatal: g's context is cancelled so the
	// other one unwinds too, and g.Wait returns the first error raised.
	g, gCtx := errgroup.WithContext(ctx)

	ing := ingest.New(s, logger)
	g.Go(func() error {
		if err := ing.Run(gCtx, conn); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		return nil
	})

	httpServer := hls.NewServer(s, logger)
	logger.Info().Src("app").Msgf("HTTP: listening on %v", cfg.HTTPListenAddr)
	g.Go(func() error {
		if err := httpServer.Start(gCtx, cfg.HTTPListenAddr); err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	return g.Wait()
}
