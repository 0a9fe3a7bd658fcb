// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/go-core-stack/storage-proxy/config"
	"github.com/go-core-stack/storage-proxy/db"
	"github.com/go-core-stack/storage-proxy/server"
	"github.com/go-core-stack/storage-proxy/storage"
)

var logger = loggo.GetLogger("storageproxy")

func setupLogging(spec string) error {
	writer := loggo.NewSimpleWriter(os.Stderr, logFormatter)
	if _, err := loggo.ReplaceDefaultWriter(writer); err != nil {
		return err
	}
	return loggo.ConfigureLoggers(spec)
}

func logFormatter(entry loggo.Entry) string {
	ts := entry.Timestamp.In(time.UTC).Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("%s %s %s %s", ts, entry.Level, entry.Module, entry.Message)
}

func run(args []string) error {
	conf, err := config.FromArgs("storage-proxy", args)
	if err != nil {
		return err
	}
	if err := setupLogging(conf.Log.Level); err != nil {
		return err
	}
	db.SetSourceIdentifier("StorageProxy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bucket, err := storage.Open(ctx, &conf.Storage)
	if err != nil {
		return fmt.Errorf("opening bucket: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownGrace)
		defer cancel()
		if err := bucket.Close(closeCtx); err != nil {
			logger.Warningf("closing bucket: %s", err)
		}
	}()

	s, err := server.New(conf, bucket)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

func main() {
	err := run(os.Args[1:])
	if err == gnuflag.ErrHelp {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage-proxy: %s\n", err)
		os.Exit(1)
	}
}
