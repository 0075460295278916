// quotaball はリモートAPIのクォータ残量を端末上のボールとして表示する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/quotaball/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "quotaball: %v\n", err)
		os.Exit(1)
	}
}
