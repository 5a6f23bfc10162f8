package main

import (
	"log"

	"github.com/cutty/cutty/core/controlplane/gateway"
	"github.com/cutty/cutty/core/infra/buildinfo"
	"github.com/cutty/cutty/core/infra/config"
)

func main() {
	log.Println("cutty security gateway starting...")
	buildinfo.Log("cutty-security-gateway")
	cfg := config.Load()
	if err := gateway.Run(cfg); err != nil {
		log.Fatalf("security gateway error: %v", err)
	}
}
