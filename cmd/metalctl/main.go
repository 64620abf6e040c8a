// metalctl runs price refreshes outside the HTTP server: one-shot from an
// external scheduler, or on its own cron schedule.
package main

import (
    "os"

    "github.com/shopspring/decimal"
)

var Version = "dev"

func main() {
    decimal.MarshalJSONWithoutQuotes = true

    if err := newRootCmd(os.Stdout).Execute(); err != nil {
        os.Exit(1)
    }
}
