package main

import (
	"context"
	"os"

	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/logx"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logx.Error("%s", errx.Print(err))
		os.Exit(1)
	}
}
