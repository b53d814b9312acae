package recall

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nanaoosaki/health-companion/internal/ontology"
	"github.com/nanaoosaki/health-companion/internal/session"
)

// correlationQuery matches "does cheese trigger my migraines" and similar.
var correlationQuery = regexp.MustCompile(`(?i)\b(?:does|do|is|are|could)\s+(.+?)\s+(?:trigger|triggers|cause|causes|related to|linked to|make)\s+(?:my\s+)?([a-z_ ]+?)[\s?.!]*$`)

// leadingVerbs are dropped from a correlation keyword ("eating cheese").
var leadingVerbs = []string{"eating ", "drinking ", "having ", "taking ", "doing "}

// Handler answers recall questions in chat.
type Handler struct {
	service *Service
	now     func() time.Time
}

// NewHandler creates a chat handler over service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// Handle answers message with a markdown summary. It never calls a model.
func (h *Handler) Handle(ctx context.Context, _ *session.Session, message string) (string, error) {
	tr := ParseTimeRange(message, h.now())

	if m := correlationQuery.FindStringSubmatch(message); m != nil {
		keyword := strings.ToLower(strings.TrimSpace(m[1]))
		for _, v := range leadingVerbs {
			keyword = strings.TrimPrefix(keyword, v)
		}
		if _, ok := ontology.Canonical(m[2]); ok {
			res := h.service.Correlate(ctx, keyword, m[2], tr, DefaultCorrelationWindow)
			return fmt.Sprintf("Looking at %s with a %d hour window:\n\n%s\n\n_Correlation is not causation; keep tracking to see if the pattern holds._",
				tr.Label, int(DefaultCorrelationWindow.Hours()), res.Conclusion), nil
		}
	}

	condition, ok := ontology.InferCondition(message)
	var found []EpisodeSummary
	if ok {
		found = h.service.FindEpisodes(ctx, condition, tr)
	} else {
		found = h.service.FindAll(ctx, tr)
	}
	return FormatEpisodes(found, condition, tr), nil
}

// FormatEpisodes renders episodes as a markdown list.
func FormatEpisodes(eps []EpisodeSummary, condition string, tr TimeRange) string {
	what := "health"
	if condition != "" {
		what = strings.ReplaceAll(condition, "_", " ")
	}
	if len(eps) == 0 {
		return fmt.Sprintf("I don't have any %s episodes recorded for %s, so there isn't enough data to answer that yet.", what, tr.Label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here's what I found for %s (%d %s episode", tr.Label, len(eps), what)
	if len(eps) != 1 {
		b.WriteByte('s')
	}
	b.WriteString("):\n")
	for _, ep := range eps {
		fmt.Fprintf(&b, "\n- **%s** %s", ep.StartedAt.UTC().Format("Mon Jan 2, 15:04"), strings.ReplaceAll(ep.Condition, "_", " "))
		if ep.MaxSeverity != nil {
			fmt.Fprintf(&b, ", peak %d/10", *ep.MaxSeverity)
		}
		if len(ep.Interventions) > 0 {
			fmt.Fprintf(&b, "; tried %s", strings.Join(ep.Interventions, ", "))
		}
	}
	return b.String()
}
