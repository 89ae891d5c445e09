package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"trivia-engine/internal/app"
	"trivia-engine/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler is the messaging-gateway adapter: it carries inbound user actions
// over a websocket into the orchestrator and renders the outbound payloads as
// typed JSON envelopes. The engine itself never touches the socket.
type WSHandler struct {
	engine   *app.Orchestrator
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Orchestrator) *WSHandler {
	return &WSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createPayload struct {
	Topic      string `json:"topic"`
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
	Mode       string `json:"mode"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const defaultQuestionCount = 5

// ServeWS upgrades the request and pumps quiz actions for one participant.
// sessionId identifies the conversation channel; userId and name identify
// the participant.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if sessionID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing sessionId, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closing := make(chan struct{})
	writerDone := make(chan struct{})
	var inflight sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closing:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		switch inbound.Type {
		case "create":
			var payload createPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: "validation", Message: "invalid create payload"}})
				continue
			}
			if payload.Count == 0 {
				payload.Count = defaultQuestionCount
			}
			// Generation blocks on network I/O; keep it off the read loop so
			// the participant can still stop the quiz while it runs.
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				result, err := h.engine.Create(r.Context(), app.CreateRequest{
					SessionID:   sessionID,
					Topic:       payload.Topic,
					Count:       payload.Count,
					Difficulty:  payload.Difficulty,
					Mode:        payload.Mode,
					CreatorID:   userID,
					CreatorName: displayName,
				})
				if err != nil {
					emit(outboundMessage[any]{Type: "error", Payload: errorFor(err)})
					return
				}
				emit(outboundMessage[any]{Type: "created", Payload: result})
			}()

		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: "validation", Message: "invalid answer payload"}})
				continue
			}
			result, err := h.engine.SubmitAnswer(r.Context(), app.AnswerRequest{
				SessionID:     sessionID,
				UserID:        userID,
				DisplayName:   displayName,
				QuestionIndex: payload.QuestionIndex,
				Answer:        payload.Answer,
			})
			if err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorFor(err)})
				continue
			}
			emit(outboundMessage[any]{Type: "result", Payload: result})

		case "skip":
			result, err := h.engine.Skip(r.Context(), sessionID, userID)
			if err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorFor(err)})
				continue
			}
			emit(outboundMessage[any]{Type: "result", Payload: result})

		case "stop":
			board, err := h.engine.Stop(r.Context(), sessionID, true)
			if err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorFor(err)})
				continue
			}
			emit(outboundMessage[any]{Type: "leaderboard", Payload: board})

		case "leaderboard":
			board, err := h.engine.GetLeaderboard(r.Context(), sessionID)
			if err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorFor(err)})
				continue
			}
			emit(outboundMessage[any]{Type: "leaderboard", Payload: board})

		case "status":
			emit(outboundMessage[any]{Type: "status", Payload: h.engine.Status(r.Context(), sessionID)})

		default:
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: "validation", Message: "unsupported message type"}})
		}
	}

	close(closing)
	inflight.Wait()
	close(send)
	<-writerDone
}

// errorFor maps engine errors to the outbound error payload. Internal causes
// are logged, never surfaced.
func errorFor(err error) errorPayload {
	var verr *domain.ValidationError
	var gerr *domain.GenerationError
	var serr *domain.StorageError

	switch {
	case errors.Is(err, domain.ErrNoActiveSession):
		return errorPayload{Kind: "no_active_session", Message: "No active quiz in this chat."}
	case errors.Is(err, domain.ErrAlreadyAttempted):
		return errorPayload{Kind: "already_attempted", Message: "You already used your attempt on this question."}
	case errors.Is(err, domain.ErrInvalidQuestionIndex):
		return errorPayload{Kind: "invalid_question_index", Message: "Invalid question index."}
	case errors.Is(err, domain.ErrNotCreator):
		return errorPayload{Kind: "not_creator", Message: "Only the quiz creator may do that."}
	case errors.As(err, &verr):
		return errorPayload{Kind: "validation", Message: verr.Reason}
	case errors.As(err, &gerr):
		log.Printf("generation error: %v", gerr)
		return errorPayload{Kind: "generation_" + string(gerr.Kind), Message: gerr.UserMessage()}
	case errors.As(err, &serr):
		log.Printf("storage error: %v", serr)
		return errorPayload{Kind: "storage", Message: "Failed to save quiz state. Please try again."}
	default:
		log.Printf("unexpected engine error: %v", err)
		return errorPayload{Kind: "internal", Message: "Something went wrong. Please try again."}
	}
}
