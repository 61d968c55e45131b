// Command mediaconvd runs the conversion daemon with default configuration
// discovery. It is the process hosting platforms launch directly.
package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"mediaconv/internal/config"
	"mediaconv/internal/daemonrun"
)

func main() {
	_ = godotenv.Load()

	cfg, _, _, err := config.Load(os.Getenv("MEDIACONV_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("mediaconvd: %v", err)
	}
}
