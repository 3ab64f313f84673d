package routes

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/events"
	"github.com/yz4230/shipyard/internal/pipeline"
	"github.com/yz4230/shipyard/internal/usecase"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamSink forwards at most one complete event; a run can finish between the initial
// lookup and the subscription, in which case the handler reports completion itself.
type streamSink struct {
	*events.WebsocketSink
	completed atomic.Bool
}

func (s *streamSink) Send(e events.Event) error {
	if e.Type() == events.TypeComplete && s.completed.Swap(true) {
		return nil
	}
	return s.WebsocketSink.Send(e)
}

func RegisterStream(injector *do.Injector, e *echo.Echo) {
	e.GET("/ws/deployments/:id", func(c echo.Context) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		ctx := c.Request().Context()
		get := do.MustInvoke[usecase.GetDeploymentByIdUsecase](injector)
		if _, err := get.Execute(ctx, id); err != nil {
			return respondError(c, err)
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade has already written the response
			return nil
		}
		log := zerolog.Ctx(ctx).With().Str("run_id", id.String()).Logger()
		sink := &streamSink{WebsocketSink: events.NewWebsocketSink(conn)}
		orchestrator := do.MustInvoke[*pipeline.Orchestrator](injector)
		orchestrator.Subscribe(id, sink)
		defer orchestrator.Unsubscribe(id, sink)
		log.Debug().Msg("deployment stream attached")

		if dep, err := get.Execute(ctx, id); err == nil && dep.Status.Terminal() {
			_ = sink.Send(events.New(id.String(), events.Complete{Status: dep.Status, Message: dep.ErrorMessage}))
		}

		// the client never sends anything; reading detects when it goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		log.Debug().Msg("deployment stream detached")
		_ = sink.Close()
		return nil
	})
}
