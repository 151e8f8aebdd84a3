package main

import (
	"os"

	"github.com/tillberg/autorestart"

	"github.com/soyeahso/captionbot/internal/cli"
)

func main() {
	// Restart when the binary is rebuilt; meant for development.
	if os.Getenv("CAPTIONBOT_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		os.Stderr.WriteString("captionbot: " + err.Error() + "\n")
		os.Exit(1)
	}
}
