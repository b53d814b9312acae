package profile

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nanaoosaki/health-companion/internal/session"
)

// Profile actions as labeled by the router.
const (
	ActionView   = "view_profile"
	ActionUpdate = "update_profile"
)

var (
	updatePattern = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:update|set|change)\s+my\s+(.+?)\s+to\s+(.+?)[\s.!]*$`)
	clearPattern  = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:clear|remove|delete)\s+my\s+(.+?)[\s.!]*$`)
)

const helpText = `I can keep your health profile up to date. Try:
- "show my profile"
- "update my medications to sumatriptan as needed"
- "set my sleep routine to 23:00-07:00"
- "clear my allergies"`

// Handler views and edits the profile from chat.
type Handler struct {
	store  *Store
	userID string
	logger *slog.Logger

	now func() time.Time
}

// NewHandler creates a profile handler for one user.
func NewHandler(store *Store, userID string, logger *slog.Logger) *Handler {
	return &Handler{store: store, userID: userID, logger: logger, now: time.Now}
}

// Handle applies a profile command. Unrecognized phrasing gets help text.
func (h *Handler) Handle(ctx context.Context, _ *session.Session, message string) (string, error) {
	if m := updatePattern.FindStringSubmatch(message); m != nil {
		key, value := normalizeKey(m[1]), strings.TrimSpace(m[2])
		if err := h.store.Set(ctx, h.userID, key, value, h.now()); err != nil {
			return "", err
		}
		h.logger.Info("profile updated", "user", h.userID, "key", key)
		return fmt.Sprintf("Updated your %s to %q.", label(key), value), nil
	}
	if m := clearPattern.FindStringSubmatch(message); m != nil {
		key := normalizeKey(m[1])
		if key == "profile" {
			return "I won't clear the whole profile from chat. Clear one field at a time, e.g. \"clear my allergies\".", nil
		}
		if err := h.store.Delete(ctx, h.userID, key); err != nil {
			return "", err
		}
		h.logger.Info("profile field cleared", "user", h.userID, "key", key)
		return fmt.Sprintf("Cleared your %s.", label(key)), nil
	}

	lower := strings.ToLower(message)
	if strings.Contains(lower, "profile") || strings.HasPrefix(strings.TrimSpace(lower), "show my") {
		return h.View(ctx)
	}
	return helpText, nil
}

// View renders the profile as a markdown list.
func (h *Handler) View(ctx context.Context) (string, error) {
	fields, err := h.store.All(ctx, h.userID)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "Your profile is empty.\n\n" + helpText, nil
	}
	var b strings.Builder
	b.WriteString("Here's your profile:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "\n- **%s**: %s", label(f.Key), f.Value)
	}
	return b.String(), nil
}

func label(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
