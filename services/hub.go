package services

import (
	"encoding/json"
	"log"
	"sync"

	"quizduel/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub is the session registry and realtime transport: it maps authenticated
// users to their connection, games to the connections viewing them, and
// dispatches inbound game events. It is rebuilt from nothing on restart and
// is never the source of truth for game outcomes.
type Hub struct {
	clients    map[*Client]bool
	users      map[string]*Client
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	gameService *GameService
	matchmaker  *Matchmaker
}

type Client struct {
	hub    *Hub
	id     string
	userID string
	socket *websocket.Conn
	send   chan []byte
}

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func NewHub(gameService *GameService, matchmaker *Matchmaker) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		users:       make(map[string]*Client),
		rooms:       make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		gameService: gameService,
		matchmaker:  matchmaker,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.users[client.userID] = client
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client %s registered for user %s - total clients: %d", client.id, client.userID, total)

		case client := <-h.unregister:
			h.mutex.Lock()
			_, known := h.clients[client]
			if known {
				delete(h.clients, client)
				close(client.send)
				for gameID, members := range h.rooms {
					if members[client] {
						delete(members, client)
						if len(members) == 0 {
							delete(h.rooms, gameID)
						}
					}
				}
				// A reconnect may have replaced this client already.
				if h.users[client.userID] == client {
					delete(h.users, client.userID)
				} else {
					known = false
				}
			}
			h.mutex.Unlock()

			if known {
				log.Printf("Client %s unregistered for user %s", client.id, client.userID)
				h.handleDisconnect(client.userID)
			}
		}
	}
}

// handleDisconnect converts a lost connection into deterministic outcomes:
// every non-terminal game of the user is forfeited, opponents are told, and
// the seeker entry is dropped. Notification failures never undo the
// forfeiture - the state change is already durable.
func (h *Hub) handleDisconnect(userID string) {
	h.matchmaker.RemoveSeeker(userID)

	games, err := h.gameService.GamesInProgressFor(userID)
	if err != nil {
		log.Printf("Failed to list games for disconnected user %s: %v", userID, err)
		return
	}

	for _, game := range games {
		forfeited, err := h.gameService.ForfeitGame(game.ID, userID)
		if err != nil {
			log.Printf("Failed to forfeit game %s on disconnect of %s: %v", game.ID, userID, err)
			continue
		}
		log.Printf("Game %s forfeited by %s due to disconnect", game.ID, userID)

		if opponent := game.OpponentOf(userID); opponent != nil {
			h.SendToUser(*opponent, "opponent_forfeited", map[string]interface{}{
				"game_id":             game.ID,
				"forfeited_player_id": userID,
				"winner_id":           forfeited.WinnerID,
			})
		}
		h.broadcastGameView(game.ID, "game_updated", forfeited)
		h.deleteRoom(game.ID)
	}
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{
		hub:    h,
		id:     uuid.NewString(),
		userID: userID,
		socket: conn,
		send:   make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// JoinRoom adds the client to a game's broadcast set.
func (h *Hub) JoinRoom(gameID string, client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.rooms[gameID] == nil {
		h.rooms[gameID] = make(map[*Client]bool)
	}
	h.rooms[gameID][client] = true
}

func (h *Hub) LeaveRoom(gameID string, client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if members, ok := h.rooms[gameID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, gameID)
		}
	}
}

func (h *Hub) deleteRoom(gameID string) {
	h.mutex.Lock()
	delete(h.rooms, gameID)
	h.mutex.Unlock()
}

func (h *Hub) roomClients(gameID string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	members := h.rooms[gameID]
	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	return clients
}

// BroadcastToGame sends a message to every connection in the game's room,
// optionally excluding the originator.
func (h *Hub) BroadcastToGame(gameID string, except *Client, messageType string, payload interface{}) {
	data, err := json.Marshal(outMessage{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s broadcast: %v", messageType, err)
		return
	}
	for _, client := range h.roomClients(gameID) {
		if client == except {
			continue
		}
		h.push(client, data)
	}
}

// broadcastGameView sends a game to everyone in its room, each connection
// receiving its own self-relative projection.
func (h *Hub) broadcastGameView(gameID, messageType string, game *models.Game) {
	for _, client := range h.roomClients(gameID) {
		h.sendToClient(client, messageType, WireGame(game, client.userID))
	}
}

// SendToUser delivers a message to a user's current connection, if any.
func (h *Hub) SendToUser(userID, messageType string, payload interface{}) bool {
	h.mutex.RLock()
	client, ok := h.users[userID]
	h.mutex.RUnlock()
	if !ok {
		return false
	}
	h.sendToClient(client, messageType, payload)
	return true
}

// IsUserConnected reports whether the user has a live connection.
func (h *Hub) IsUserConnected(userID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.users[userID]
	return ok
}

func (h *Hub) sendToClient(client *Client, messageType string, payload interface{}) {
	data, err := json.Marshal(outMessage{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}
	h.push(client, data)
}

func (h *Hub) push(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		log.Printf("Client %s send buffer full, dropping connection", client.id)
		go h.UnregisterClient(client)
	}
}

func (h *Hub) sendError(client *Client, inResponseTo string, err error) {
	h.sendToClient(client, "error", map[string]interface{}{
		"request": inResponseTo,
		"message": err.Error(),
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for user %s: %v", c.userID, err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("Error unmarshaling message from user %s: %v", c.userID, err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer func() {
		c.socket.Close()
	}()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		c.hub.sendToClient(c, "pong", "pong")

	case "find_game":
		c.hub.handleFindGame(c)

	case "cancel_search":
		c.hub.handleCancelSearch(c)

	case "submit_answer":
		var req struct {
			GameID         string  `json:"game_id"`
			RoundNumber    int     `json:"round_number"`
			SelectedOption *string `json:"selected_option"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.hub.sendError(c, "submit_answer", err)
			return
		}
		c.hub.handleAnswer(c, req.GameID, req.RoundNumber, req.SelectedOption)

	case "answer_timeout":
		var req struct {
			GameID      string `json:"game_id"`
			RoundNumber int    `json:"round_number"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.hub.sendError(c, "answer_timeout", err)
			return
		}
		c.hub.handleAnswer(c, req.GameID, req.RoundNumber, nil)

	case "leave_game":
		var req struct {
			GameID string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.hub.sendError(c, "leave_game", err)
			return
		}
		c.hub.handleLeaveGame(c, req.GameID)

	case "request_game_state":
		var req struct {
			GameID string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.hub.sendError(c, "request_game_state", err)
			return
		}
		snapshot, err := c.hub.gameService.Snapshot(req.GameID)
		if err != nil {
			c.hub.sendError(c, "request_game_state", err)
			return
		}
		c.hub.sendToClient(c, "game_state_sync", snapshot)

	default:
		log.Printf("Unknown message type %q from user %s", msg.Type, c.userID)
	}
}

func (h *Hub) handleFindGame(c *Client) {
	result, err := h.matchmaker.FindOrCreate(c.userID)
	if err != nil {
		h.sendError(c, "find_game", err)
		return
	}

	h.JoinRoom(result.Game.ID, c)

	if result.Waiting {
		h.sendToClient(c, "find_game_result", map[string]interface{}{
			"waiting": true,
			"game":    result.Game,
		})
		return
	}

	game := result.Game
	questions := make([]models.Question, len(result.Questions))
	for i, q := range result.Questions {
		questions[i] = q.Sanitized()
	}

	// Creator side: absolute orientation is already self-relative for them.
	if game.Player2 != nil {
		h.SendToUser(game.Player1ID, "player_joined", map[string]interface{}{
			"game":     WireGame(game, game.Player1ID),
			"opponent": game.Player2.Public(),
		})
	}
	h.SendToUser(game.Player1ID, "game_started", map[string]interface{}{
		"game":       WireGame(game, game.Player1ID),
		"questions":  questions,
		"time_limit": QuestionTimeLimitSeconds,
	})

	// Joiner side gets the swapped projection.
	joinerView := WireGame(game, c.userID)
	if game.Player1 != nil {
		h.sendToClient(c, "player_joined", map[string]interface{}{
			"game":     joinerView,
			"opponent": game.Player1.Public(),
		})
	}
	h.sendToClient(c, "game_started", map[string]interface{}{
		"game":       joinerView,
		"questions":  questions,
		"time_limit": QuestionTimeLimitSeconds,
	})

	h.sendToClient(c, "find_game_result", map[string]interface{}{
		"waiting": false,
		"game":    joinerView,
	})
}

func (h *Hub) handleCancelSearch(c *Client) {
	cancelled, err := h.matchmaker.CancelSearch(c.userID)
	if err != nil {
		h.sendError(c, "cancel_search", err)
		return
	}
	h.sendToClient(c, "search_cancelled", map[string]interface{}{
		"cancelled_games": cancelled,
	})
}

type roundResultPayload struct {
	RoundResult
	NextQuestion    *models.Question  `json:"nextQuestion"`
	GameStatus      models.GameStatus `json:"gameStatus"`
	ForcedByTimeout bool              `json:"forcedByTimeout,omitempty"`
}

// handleAnswer is the settlement dispatcher: a message arrival directly
// triggers evaluation, there is no polling loop.
func (h *Hub) handleAnswer(c *Client, gameID string, roundNumber int, selectedOption *string) {
	result, err := h.gameService.SubmitAnswer(gameID, c.userID, roundNumber, selectedOption)
	if err != nil {
		h.sendError(c, "submit_answer", err)
		return
	}

	h.BroadcastToGame(gameID, c, "opponent_answered", map[string]interface{}{
		"player_id":    c.userID,
		"round_number": roundNumber,
		"was_timeout":  result.WasTimeout,
	})

	game := result.Game

	if result.Settled {
		var nextQuestion *models.Question
		if result.NextQuestion != nil {
			sanitized := result.NextQuestion.Sanitized()
			nextQuestion = &sanitized
		}

		for _, playerID := range participants(game) {
			h.SendToUser(playerID, "round_result", roundResultPayload{
				RoundResult:     result.Result.SelfRelative(game, playerID),
				NextQuestion:    nextQuestion,
				GameStatus:      game.Status,
				ForcedByTimeout: result.WasTimeout,
			})
		}

		if game.Status == models.GameFinished {
			h.broadcastGameView(gameID, "game_over", game)
			h.deleteRoom(gameID)
		}
	}

	ownScore := game.Player1Score
	if game.Player2ID != nil && *game.Player2ID == c.userID {
		ownScore = game.Player2Score
	}
	h.sendToClient(c, "answer_ack", map[string]interface{}{
		"success":       true,
		"current_score": ownScore,
		"both_answered": result.Settled && !game.IsSolo,
	})
}

func (h *Hub) handleLeaveGame(c *Client, gameID string) {
	game, err := h.gameService.GetGame(gameID)
	if err != nil {
		h.sendError(c, "leave_game", err)
		return
	}

	if !game.Status.Terminal() {
		forfeited, err := h.gameService.ForfeitGame(gameID, c.userID)
		if err != nil {
			h.sendError(c, "leave_game", err)
			return
		}
		log.Printf("Game %s left by %s", gameID, c.userID)

		if opponent := game.OpponentOf(c.userID); opponent != nil {
			h.SendToUser(*opponent, "opponent_left", map[string]interface{}{
				"game_id":   gameID,
				"leaver_id": c.userID,
				"winner_id": forfeited.WinnerID,
			})
		}
		h.broadcastGameView(gameID, "game_updated", forfeited)
		game = forfeited
	}

	h.LeaveRoom(gameID, c)
	if game.Status.Terminal() {
		h.deleteRoom(gameID)
	}
}

func participants(game *models.Game) []string {
	ids := []string{game.Player1ID}
	if game.Player2ID != nil {
		ids = append(ids, *game.Player2ID)
	}
	return ids
}
