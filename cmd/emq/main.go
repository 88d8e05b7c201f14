// Command emq resolves electricity-market questions into query specs
// without touching any market data.
package main

import (
	"fmt"
	"os"
	"time"
)

func main() {
	if err := newRootCmd(os.Stdout, time.Now).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
