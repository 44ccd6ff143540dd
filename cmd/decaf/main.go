package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/decaf-reliability/decaf/internal/model"
	"github.com/decaf-reliability/decaf/internal/report"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "decaf:", err)
	switch {
	case errors.Is(err, model.ErrConfiguration):
		os.Exit(2)
	case errors.Is(err, report.ErrRequirement):
		os.Exit(3)
	}
	os.Exit(1)
}
