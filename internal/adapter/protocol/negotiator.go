package protocol

import (
	"log/slog"

	"github.com/mcpgate/mcpgate/internal/adapter/protocol/v20241105"
	"github.com/mcpgate/mcpgate/internal/adapter/protocol/v20251125"
)

// LatestVersion is the version negotiated for unknown or newer-than-known
// client protocol versions.
const LatestVersion = "2025-11-25"

// Negotiate picks the Adapter for a client's requested protocol version.
// An unrecognized version upgrades to the latest adapter rather than
// failing the handshake outright, matching the predecessor's upgrade
// policy. The choice made here is sticky for the session: callers are
// expected to negotiate once per session and reuse the returned Adapter.
func Negotiate(logger *slog.Logger, clientVersion string) Adapter {
	switch clientVersion {
	case "2024-11-05":
		if logger != nil {
			logger.Debug("negotiated legacy protocol adapter", "version", clientVersion)
		}
		return v20241105.New()
	case "2025-11-25", "2025-06-18", "latest":
		if logger != nil {
			logger.Debug("negotiated modern protocol adapter", "version", clientVersion)
		}
		return v20251125.New()
	default:
		if logger != nil {
			logger.Info("unknown protocol version, upgrading to latest", "requested", clientVersion, "upgraded_to", LatestVersion)
		}
		return v20251125.New()
	}
}
