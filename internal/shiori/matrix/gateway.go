package matrix

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/Shiori/common/trace"
	"github.com/bdobrica/Shiori/internal/shiori/turn"
)

// TurnHandler runs one conversational turn.
type TurnHandler interface {
	Handle(ctx context.Context, req turn.Request) (*turn.Response, error)
}

// Replier posts replies back to a room.
type Replier interface {
	Reply(ctx context.Context, roomID, eventID, body string) error
	Typing(ctx context.Context, roomID string, typing bool) error
}

// Gateway turns text messages in mapped rooms into turns. The Matrix user
// id of the sender is the turn's user id and the room's affair, if any, is
// its affair id.
type Gateway struct {
	turns   TurnHandler
	replier Replier
	self    string
	rooms   map[string]string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewGateway creates a gateway. rooms maps room ids to affair ids; an empty
// affair id accepts the room without an affair. self is the bot's user id,
// whose own messages are ignored.
func NewGateway(turns TurnHandler, replier Replier, self string, rooms map[string]string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{turns: turns, replier: replier, self: self, rooms: rooms, logger: logger}
}

// OnEvent is the sync callback. Each accepted message is processed in its
// own goroutine so a slow completion does not stall the sync loop.
func (g *Gateway) OnEvent(ctx context.Context, evt *event.Event) {
	req, ok := g.request(evt)
	if !ok {
		return
	}
	roomID, eventID := evt.RoomID.String(), evt.ID.String()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.process(context.WithoutCancel(ctx), roomID, eventID, req)
	}()
}

// Wait blocks until every in-flight message has been answered.
func (g *Gateway) Wait() { g.wg.Wait() }

func (g *Gateway) request(evt *event.Event) (turn.Request, bool) {
	if evt == nil || evt.Sender.String() == g.self {
		return turn.Request{}, false
	}
	affair, mapped := g.rooms[evt.RoomID.String()]
	if !mapped {
		return turn.Request{}, false
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return turn.Request{}, false
	}
	body := stripReplyFallback(msg.Body)
	if body == "" {
		return turn.Request{}, false
	}
	return turn.Request{Message: body, UserID: evt.Sender.String(), AffairID: affair}, true
}

func (g *Gateway) process(ctx context.Context, roomID, eventID string, req turn.Request) {
	ctx, _ = trace.Ensure(ctx)
	log := g.logger.With("room", roomID, "trace_id", trace.FromContext(ctx))

	if err := g.replier.Typing(ctx, roomID, true); err != nil {
		log.Debug("matrix: typing indicator failed", "err", err)
	}
	defer func() {
		if err := g.replier.Typing(ctx, roomID, false); err != nil {
			log.Debug("matrix: typing indicator failed", "err", err)
		}
	}()

	resp, err := g.turns.Handle(ctx, req)
	if err != nil {
		log.Warn("matrix: turn rejected", "err", err)
		return
	}
	if err := g.replier.Reply(ctx, roomID, eventID, resp.Reply); err != nil {
		log.Error("matrix: reply failed", "err", err)
	}
}

// stripReplyFallback drops the quoted "> " lines clients prepend to replies.
func stripReplyFallback(body string) string {
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], "> ") {
		i++
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n"))
}
