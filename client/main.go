// Command client is a line-oriented websocket client for manual play.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/game"
	"github.com/wfunc/codexserver/network"
)

const usage = `commands:
  login <name> | create <name> <max> | list | join <code> | info | start | exitlobby
  starter | setstarter <front|back> | colors | color <RED|BLUE|GREEN|YELLOW> | goals | goal <id>
  me | player <name> | manuscript [name] | flow | board
  place <card> <front|back> <x> <y> | drawv <resource|gold> <0|1> | drawc <resource|gold>
  ended | winner | exitmatch | say <text> | tell <name> <text> | history | stats [name] | recent [name]`

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, body interface{}) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return err
		}
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

// parse turns one input line into a request.
func parse(line string) (uint16, interface{}, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return 0, nil, fmt.Errorf("empty command")
	}
	arg := func(i int) string {
		if i < len(f) {
			return f[i]
		}
		return ""
	}
	num := func(i int) int {
		n, _ := strconv.Atoi(arg(i))
		return n
	}
	side := func(i int) cards.Side {
		var s cards.Side
		_ = s.UnmarshalText([]byte(arg(i)))
		return s
	}
	kind := func(i int) cards.Type {
		var t cards.Type
		_ = t.UnmarshalText([]byte(arg(i)))
		return t
	}

	switch f[0] {
	case "login":
		return network.MsgTypeLogin, network.LoginRequest{Username: arg(1)}, nil
	case "create":
		return network.MsgTypeCreateLobby, network.CreateLobbyRequest{Name: arg(1), MaxPlayers: num(2)}, nil
	case "list":
		return network.MsgTypeListLobbies, nil, nil
	case "join":
		return network.MsgTypeJoinLobby, network.JoinLobbyRequest{Code: strings.ToUpper(arg(1))}, nil
	case "info":
		return network.MsgTypeLobbyInfo, nil, nil
	case "start":
		return network.MsgTypeStartLobby, nil, nil
	case "exitlobby":
		return network.MsgTypeExitLobby, nil, nil
	case "starter":
		return network.MsgTypeStarterCard, nil, nil
	case "setstarter":
		return network.MsgTypeSetStarterCard, network.SetStarterRequest{Side: side(1)}, nil
	case "colors":
		return network.MsgTypeAvailableColors, nil, nil
	case "color":
		return network.MsgTypeSetPlayerColor, network.SetColorRequest{Color: game.Color(strings.ToUpper(arg(1)))}, nil
	case "goals":
		return network.MsgTypeProposedGoals, nil, nil
	case "goal":
		return network.MsgTypeChooseGoal, network.ChooseGoalRequest{GoalID: num(1)}, nil
	case "me":
		return network.MsgTypePlayerData, nil, nil
	case "player":
		return network.MsgTypePlayerData, network.PlayerRequest{Username: arg(1)}, nil
	case "manuscript":
		return network.MsgTypeManuscript, network.PlayerRequest{Username: arg(1)}, nil
	case "flow":
		return network.MsgTypeGameFlow, nil, nil
	case "board":
		return network.MsgTypeGameBoard, nil, nil
	case "place":
		return network.MsgTypePlaceCard, network.PlaceCardRequest{
			CardID:   num(1),
			Side:     side(2),
			Position: cards.Position{X: num(3), Y: num(4)},
		}, nil
	case "drawv":
		return network.MsgTypeDrawVisible, network.DrawVisibleRequest{Type: kind(1), Index: num(2)}, nil
	case "drawc":
		return network.MsgTypeDrawCovered, network.DrawCoveredRequest{Type: kind(1)}, nil
	case "ended":
		return network.MsgTypeGameEnded, nil, nil
	case "winner":
		return network.MsgTypeWinner, nil, nil
	case "exitmatch":
		return network.MsgTypeExitMatch, nil, nil
	case "say":
		return network.MsgTypeSendChat, network.ChatRequest{Text: strings.Join(f[1:], " ")}, nil
	case "tell":
		return network.MsgTypeSendChat, network.ChatRequest{To: arg(1), Text: strings.Join(f[min(2, len(f)):], " ")}, nil
	case "history":
		return network.MsgTypeChatHistory, nil, nil
	case "stats":
		return network.MsgTypePlayerStats, network.PlayerRequest{Username: arg(1)}, nil
	case "recent":
		return network.MsgTypeRecentMatches, network.RecentMatchesRequest{Username: arg(1)}, nil
	}
	return 0, nil, fmt.Errorf("unknown command %q", f[0])
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	heartbeat := flag.Duration("heartbeat", 5*time.Second, "heartbeat period")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			p, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			log.Printf("<- RECV (ID: %d): %s", p.MsgID, string(p.Data))
		}
	}()

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- reader.Text()
		}
		close(lines)
	}()

	ticker := time.NewTicker(*heartbeat)
	defer ticker.Stop()

	fmt.Println(usage)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
				log.Println("Write error:", err)
				return
			}
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			msgID, body, err := parse(line)
			if err != nil {
				fmt.Println(err)
				fmt.Println(usage)
				continue
			}
			if err := send(c, msgID, body); err != nil {
				log.Println("Write error:", err)
				return
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
