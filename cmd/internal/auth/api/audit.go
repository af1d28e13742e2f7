package authapi

import (
	"context"
	"log/slog"
	"net"
	"strings"
)

// audit emits a security event on the handler logger under "audit.<action>".
func (h *Handler) audit(ctx context.Context, action string, ip net.IP, ua string, attrs ...any) {
	action = strings.TrimSpace(action)
	if h == nil || action == "" {
		return
	}

	args := make([]any, 0, len(attrs)+4)
	if ip != nil {
		args = append(args, "ip", ip.String())
	}
	if ua = strings.TrimSpace(ua); ua != "" {
		args = append(args, "user_agent", ua)
	}
	args = append(args, attrs...)

	h.log.Log(ctx, slog.LevelInfo, "audit."+action, args...)
}
