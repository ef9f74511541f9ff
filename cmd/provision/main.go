package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZebulonRouseFrantzich/provision/internal/provision"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stderr)
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errorMessage(err))
		stop()
		os.Exit(1)
	}
}

// errorMessage renders err for the terminal. Run failures show their one-line
// user message; the details were already logged under the run id.
func errorMessage(err error) string {
	var f *provision.Failure
	if errors.As(err, &f) {
		return f.UserMessage()
	}
	return err.Error()
}
