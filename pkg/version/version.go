package version

// Version is the build version, overridden at link time via
// -ldflags "-X birdtrip/pkg/version.Version=v1.2.3".
var Version = "dev"
