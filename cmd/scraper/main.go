// Package main hosts the scraper CLI entrypoint.
package main

import "github.com/aungkkmo/burmese-corpus-scraper/cmd"

func main() {
	cmd.Execute()
}
