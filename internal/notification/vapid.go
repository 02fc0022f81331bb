package notification

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/wallet-sync/internal/types"
)

var mobileUA = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini|Mobile`)

// DecodeVAPIDKey converts a URL-safe base64 application server key into raw
// bytes: re-pad to a multiple of 4, map '-' to '+' and '_' to '/', then
// decode as standard base64.
func DecodeVAPIDKey(key string) ([]byte, error) {
	padding := strings.Repeat("=", (4-len(key)%4)%4)
	std := strings.NewReplacer("-", "+", "_", "/").Replace(key + padding)

	raw, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return nil, fmt.Errorf("decode vapid key: %w", err)
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// ClassifyDevice maps a user agent to mobile or desktop
func ClassifyDevice(userAgent string) types.DeviceType {
	if mobileUA.MatchString(userAgent) {
		return types.DeviceMobile
	}
	return types.DeviceDesktop
}
