// Command momo runs the companion robot and its bring-up tools.
//
//	momo run                  # perception, tail, approach and conversation
//	momo serve-ai             # remote reply service for a robot
//	momo tail --for 3s        # wag the tail
//	momo drive forward        # pulse the motors
//	momo range                # read the distance sensor
//	momo detect               # count faces
//	momo say "안녕하세요"
//	momo listen               # record and transcribe once
//	momo ask "사랑해"          # run the reply chain once
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
