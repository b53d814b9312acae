// Package companion is the conversational front door: it routes each
// message to the right specialist and assembles the reply.
package companion

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/healthlog"
	"github.com/nanaoosaki/health-companion/internal/router"
	"github.com/nanaoosaki/health-companion/internal/session"
)

// Handler is a specialist that answers one kind of message.
type Handler interface {
	Handle(ctx context.Context, sess *session.Session, message string) (string, error)
}

// Classifier picks the intent for a message.
type Classifier interface {
	Route(ctx context.Context, message string, history []string) router.Decision
}

// Logger records health information. *healthlog.Workflow implements it.
type Logger interface {
	Log(ctx context.Context, sess *session.Session, message string) healthlog.Result
	ResolvePending(ctx context.Context, sess *session.Session, choice int) healthlog.Result
	CancelPending(sess *session.Session) bool
}

const (
	separator = "\n\n---\n\n"

	unknownReply = "I'm not sure how to help with that yet. You can tell me how you're feeling, ask about your history (\"when was my last migraine?\"), or ask for advice."
	emptyReply   = "Tell me how you're feeling, or ask me about your health history."
	errorReply   = "Sorry, something went wrong on my side. Please try again."
	controlHelp  = "Commands: /resolve <number> answers my last question, /cancel skips it."
)

var (
	resolveCommand = regexp.MustCompile(`^/resolve\s+(\d+)$`)
	bareChoice     = regexp.MustCompile(`^\d+$`)
)

// Meta describes how a reply was produced.
type Meta struct {
	RequestID          string                 `json:"request_id,omitempty"`
	Intent             router.Intent          `json:"intent"`
	PrimaryIntent      router.Intent          `json:"primary_intent,omitempty"`
	Confidence         float64                `json:"router_confidence"`
	Overridden         bool                   `json:"overridden,omitempty"`
	SecondaryIntent    router.Intent          `json:"secondary_intent,omitempty"`
	Chained            bool                   `json:"chained"`
	Action             episode.Action         `json:"action,omitempty"`
	EpisodeID          string                 `json:"episode_id,omitempty"`
	NeedsClarification bool                   `json:"needs_clarification,omitempty"`
	Clarification      *episode.Clarification `json:"clarification,omitempty"`
	Error              bool                   `json:"error,omitempty"`
}

// Reply is the companion's answer to one message.
type Reply struct {
	Text string `json:"text"`
	Meta Meta   `json:"meta"`
}

// Handlers are the specialists besides health logging. Nil entries fall
// back to a polite refusal.
type Handlers struct {
	Recall  Handler
	Coach   Handler
	Profile Handler
}

// Companion routes messages for many concurrent sessions. Messages
// within one session are handled one at a time.
type Companion struct {
	logger   *slog.Logger
	sessions *session.Manager
	router   Classifier
	log      Logger
	handlers Handlers
}

// New creates a companion.
func New(logger *slog.Logger, sessions *session.Manager, classifier Classifier, log Logger, handlers Handlers) *Companion {
	return &Companion{
		logger:   logger,
		sessions: sessions,
		router:   classifier,
		log:      log,
		handlers: handlers,
	}
}

// Handle answers message within sessionID's conversation.
func (c *Companion) Handle(ctx context.Context, sessionID, message string) Reply {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{Text: emptyReply, Meta: Meta{Intent: router.IntentUnknown}}
	}

	sess := c.sessions.Get(sessionID)
	end := sess.BeginTurn()
	defer end()

	start := time.Now()
	history := sess.HistoryLines()

	var reply Reply
	if r, ok := c.control(ctx, sess, message); ok {
		reply = r
	} else {
		reply = c.route(ctx, sess, message, history)
	}

	now := time.Now()
	sess.AddTurn("user", message, now)
	sess.AddTurn("assistant", reply.Text, now)

	c.logger.Info("turn handled",
		"session", sessionID,
		"intent", reply.Meta.Intent,
		"chained", reply.Meta.Chained,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return reply
}

// control handles slash commands, and bare numbers while a question is
// pending.
func (c *Companion) control(ctx context.Context, sess *session.Session, message string) (Reply, bool) {
	meta := Meta{Intent: router.IntentControl, Confidence: 1}

	switch {
	case resolveCommand.MatchString(message), bareChoice.MatchString(message) && sess.Pending() != nil:
		digits := strings.TrimSpace(strings.TrimPrefix(message, "/resolve"))
		n, _ := strconv.Atoi(digits)
		res := c.log.ResolvePending(ctx, sess, n)
		applyResult(&meta, res)
		return Reply{Text: res.Reply, Meta: meta}, true

	case message == "/cancel":
		if c.log.CancelPending(sess) {
			return Reply{Text: "Okay, I've dropped that question. Nothing was saved.", Meta: meta}, true
		}
		return Reply{Text: "There's nothing to cancel.", Meta: meta}, true

	case strings.HasPrefix(message, "/"):
		return Reply{Text: controlHelp, Meta: meta}, true
	}
	return Reply{}, false
}

func (c *Companion) route(ctx context.Context, sess *session.Session, message string, history []string) Reply {
	d := c.router.Route(ctx, message, history)
	meta := Meta{
		RequestID:       d.RequestID,
		Intent:          d.FinalIntent,
		PrimaryIntent:   d.Primary,
		Confidence:      d.Confidence,
		Overridden:      d.Overridden,
		SecondaryIntent: d.Secondary,
	}

	text, ok := c.dispatch(ctx, sess, d.FinalIntent, message, &meta)
	if !ok {
		meta.Error = true
		return Reply{Text: text, Meta: meta}
	}

	if sec := d.Secondary; sec != "" && sec != d.FinalIntent {
		if extra, title, chained := c.chain(ctx, sess, sec, message); chained {
			text += separator + "**" + title + "**\n\n" + extra
			meta.Chained = true
		}
	}
	return Reply{Text: text, Meta: meta}
}

// dispatch runs the specialist for intent. ok is false when it failed.
func (c *Companion) dispatch(ctx context.Context, sess *session.Session, intent router.Intent, message string, meta *Meta) (string, bool) {
	switch intent {
	case router.IntentLog:
		res := c.log.Log(ctx, sess, message)
		applyResult(meta, res)
		if res.Action == episode.ActionQuery && c.handlers.Recall != nil {
			// The extractor saw a question; answer it from history.
			meta.Intent = router.IntentRecall
			return c.run(ctx, sess, c.handlers.Recall, "recall", message)
		}
		return res.Reply, !res.Failed

	case router.IntentRecall:
		return c.run(ctx, sess, c.handlers.Recall, "recall", message)
	case router.IntentCoach:
		return c.run(ctx, sess, c.handlers.Coach, "coach", message)
	case router.IntentProfile:
		return c.run(ctx, sess, c.handlers.Profile, "profile", message)
	case router.IntentControl:
		return controlHelp, true
	default:
		return unknownReply, true
	}
}

func (c *Companion) run(ctx context.Context, sess *session.Session, h Handler, name, message string) (string, bool) {
	if h == nil {
		return fmt.Sprintf("The %s feature isn't available right now.", name), false
	}
	text, err := h.Handle(ctx, sess, message)
	if err != nil {
		c.logger.Error("specialist failed", "handler", name, "error", err)
		return errorReply, false
	}
	return text, true
}

// chain runs a secondary specialist. Only coach and recall are chained.
func (c *Companion) chain(ctx context.Context, sess *session.Session, intent router.Intent, message string) (text, title string, ok bool) {
	switch intent {
	case router.IntentCoach:
		text, ok = c.run(ctx, sess, c.handlers.Coach, "coach", message)
		return text, "Health Guidance", ok
	case router.IntentRecall:
		text, ok = c.run(ctx, sess, c.handlers.Recall, "recall", message)
		return text, "Related History", ok
	}
	return "", "", false
}

func applyResult(meta *Meta, res healthlog.Result) {
	meta.Action = res.Action
	meta.EpisodeID = res.EpisodeID
	meta.Error = meta.Error || res.Failed
	if res.Clarification != nil {
		meta.NeedsClarification = true
		meta.Clarification = res.Clarification
	}
}
