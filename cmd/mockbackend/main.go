// cmd/mockbackend/main.go
package main

import (
	"log"
	"net/http"
	"time"

	"github.com/alecthomas/kong"

	"turnera/gateway/internal/mockscript"
)

type CLI struct {
	Addr string `help:"Listen address." default:":8081"`
	Days int    `help:"Number of weekdays with bookable slots." default:"10"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("mockbackend"),
		kong.Description("In-memory stand-in for the scheduling backend."),
	)

	script := mockscript.New(mockscript.WeekdaySlots(time.Now(), cli.Days), log.Default())
	srv := &http.Server{
		Addr:              cli.Addr,
		Handler:           script,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("Mock scheduling backend listening on http://localhost%s", cli.Addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
