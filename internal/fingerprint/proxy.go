package fingerprint

import "fmt"

// ProxyUsername builds the sticky-session proxy username suffix
// `<base>-carrier-<c>-session-<id>` per spec.md §4.4, where sessionID is
// the mission id (or a rotation variant minted after a 403).
func ProxyUsername(base, carrier, sessionID string) string {
	if carrier == "" {
		carrier = "any"
	}
	return fmt.Sprintf("%s-carrier-%s-session-%s", base, carrier, sessionID)
}

// RotationSessionID mints the rotation-variant session id used after a 403,
// per spec.md §4.2: `<mission-id>_r403_<timestamp>`.
func RotationSessionID(missionID string, unixTimestamp int64) string {
	return fmt.Sprintf("%s_r403_%d", missionID, unixTimestamp)
}
