package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/modacart/gateway"
	"github.com/modacart/gateway/config"
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("error processing config: %v", err)
	}

	opts, err := cfg.ToOptions()
	if err != nil {
		log.Fatalf("error processing config: %v", err)
	}

	log.Fatal(gateway.Run(opts))
}
