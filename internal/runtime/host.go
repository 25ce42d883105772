package runtime

import (
	"os"
	"time"
)

// HostingEnvironment describes the process the application runs in.
type HostingEnvironment struct {
	ApplicationName string
	Version         string
	Hostname        string
	WorkingDir      string
	Debug           bool
	StartedAt       time.Time
}

func NewHostingEnvironment(appName, version string, debug bool) *HostingEnvironment {
	hostname, _ := os.Hostname()
	wd, _ := os.Getwd()
	return &HostingEnvironment{
		ApplicationName: appName,
		Version:         version,
		Hostname:        hostname,
		WorkingDir:      wd,
		Debug:           debug,
		StartedAt:       time.Now(),
	}
}
