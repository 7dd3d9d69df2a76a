// starlarkc is the out-of-process compiler backend.  It reads one JSON
// compile request from stdin and writes the JSON response to stdout.
package main

import (
	"log"
	"os"

	"github.com/stackb/memcompile/pkg/compiler"
	"github.com/stackb/memcompile/pkg/logger"
)

func main() {
	log.SetPrefix("starlarkc: ")
	log.SetFlags(0) // don't print timestamps

	// stdout carries the response; logs go to stderr only.
	zlog, err := logger.New("warn", logger.JSON, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	if err := compiler.Serve(os.Stdin, os.Stdout, compiler.NewStarlarkService(compiler.WithLogger(zlog))); err != nil {
		log.Fatal(err)
	}
}
