package buildconfig

// Set with -ldflags "-X github.com/brainbox/retailplus/internal/buildconfig.version=..."
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

func Version() string { return version }

func Commit() string { return commit }

// UserAgent identifies the agent to the remote backend.
func UserAgent() string {
	return "retailplus-agent/" + version + " (" + commit + ")"
}

// VersionInfo is logged at startup.
func VersionInfo() map[string]string {
	info := map[string]string{
		"version":    version,
		"commit":     commit,
		"user_agent": UserAgent(),
	}
	if buildDate != "" {
		info["build_date"] = buildDate
	}
	return info
}
