package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/guardtrack/tracker/internal/tracker"
	"github.com/guardtrack/tracker/internal/tracker/config"
	"github.com/guardtrack/tracker/internal/tracker/gnss"
	"github.com/guardtrack/tracker/internal/tracker/modem"
	"github.com/guardtrack/tracker/internal/tracker/store"
	"github.com/guardtrack/tracker/pkg/log"
)

func run() error {
	flags := config.ParseCLIFlags()
	log.Init(flags.Debug)
	defer log.Sync()

	conf, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := conf.Verify(); err != nil {
		return fmt.Errorf("verify configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := modem.SerialDialer{Port: conf.Device.Port, Baud: conf.Device.Baud}
	clk := modem.SystemClock{}

	// DTR wiring is board specific, the default build drives no pin and
	// relies on the modem UART staying clocked.
	sess, err := modem.NewSession(dialer, modem.NopPin{}, clk, modem.Config{
		SimPIN: conf.Sim.PIN,
	})
	if err != nil {
		return fmt.Errorf("open modem: %w", err)
	}
	defer sess.Close()

	trk := tracker.New(
		sess,
		gnss.NewReceiver(sess, clk),
		store.New(conf.StorePath),
		clk,
		conf,
	)

	log.Info("tracker starting",
		zap.String("port", conf.Device.Port),
		zap.Int("baud", conf.Device.Baud))

	if err := trk.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("tracker shut down")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Error("fatal", zap.Error(err))
		os.Exit(1)
	}
}
