// NeonChat CLI - Command line client for NeonChat
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/neonchat/neonchat/clients/go/neon"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("NEON_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accounts := neon.NewAccountClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := accounts.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "create":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: neon create <username>")
			os.Exit(1)
		}
		chat(ctx, baseURL, os.Args[2], "")

	case "join":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: neon join <room> <username>")
			os.Exit(1)
		}
		chat(ctx, baseURL, os.Args[3], os.Args[2])

	case "register":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: neon register <alias>")
			os.Exit(1)
		}
		key, err := accounts.Register(ctx, os.Args[2])
		exitOnError(err)
		fmt.Printf("Registered as: %s\n", accounts.Alias)
		fmt.Printf("Recovery key: %s\n", key)
		fmt.Println("Store the recovery key safely; it cannot be shown again.")

	case "check":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: neon check <alias>")
			os.Exit(1)
		}
		exists, err := accounts.CheckAlias(ctx, os.Args[2])
		exitOnError(err)
		if exists {
			fmt.Printf("%s is taken\n", os.Args[2])
		} else {
			fmt.Printf("%s is available\n", os.Args[2])
		}

	case "plan":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: neon plan <alias>")
			os.Exit(1)
		}
		plan, err := accounts.Plan(ctx, os.Args[2])
		exitOnError(err)
		fmt.Printf("%s: %s\n", os.Args[2], plan)

	case "upgrade":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: neon upgrade <alias> <amount> [email]")
			os.Exit(1)
		}
		accounts.Alias = os.Args[2]
		accounts.RecoveryKey = os.Getenv("NEON_RECOVERY_KEY")
		email := ""
		if len(os.Args) > 4 {
			email = os.Args[4]
		}
		session, err := accounts.CreatePaymentSession(ctx, os.Args[3], email)
		exitOnError(err)
		printJSON(session)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// chat runs an interactive room session. An empty room creates a new one.
func chat(ctx context.Context, baseURL, username, room string) {
	in := bufio.NewScanner(os.Stdin)

	password := os.Getenv("NEON_ROOM_PASSWORD")
	if password == "" {
		fmt.Print("Room password: ")
		if !in.Scan() {
			os.Exit(1)
		}
		password = in.Text()
	}

	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(baseURL, "/"), "http") + "/ws"
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	session, err := neon.Dial(dialCtx, wsURL, username)
	cancel()
	exitOnError(err)
	defer session.Close()

	if room == "" {
		err = session.CreateRoom(password)
	} else {
		err = session.Join(room, password)
	}
	exitOnError(err)

	go printEvents(session)

	lines := make(chan string)
	go func() {
		for in.Scan() {
			lines <- in.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(session, line); quit {
				return
			}
		}
	}
}

func handleLine(session *neon.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch fields[0] {
	case "/quit":
		return true
	case "/leave":
		err = session.Leave()
		if err == nil {
			return true
		}
	case "/react":
		if len(fields) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: /react <message_id> <emoji>")
			return false
		}
		err = session.React(fields[1], fields[2], neon.ReactionAdd)
	case "/unreact":
		if len(fields) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: /unreact <message_id> <emoji>")
			return false
		}
		err = session.React(fields[1], fields[2], neon.ReactionRemove)
	default:
		err = session.Send(line)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return false
}

func printEvents(session *neon.Session) {
	for ev := range session.Events() {
		switch ev.Type {
		case neon.EventRoomCreated:
			fmt.Printf("* room code: %s\n", ev.Room)
		case neon.EventJoined:
			fmt.Printf("* joined %s\n", ev.Room)
		case neon.EventSystem:
			fmt.Printf("* %s\n", ev.Text)
		case neon.EventError:
			fmt.Fprintf(os.Stderr, "! %s\n", ev.Text)
		case neon.EventUserCount:
			fmt.Printf("* %d online\n", ev.Count)
		case neon.EventMessage, neon.EventDecrypted:
			m := ev.Message
			fmt.Printf("[%s] %s: %s  (%s)\n", m.Time, m.Username, m.Text, m.ID)
		case neon.EventReactions:
			parts := make([]string, 0, len(ev.Reactions))
			for _, g := range ev.Reactions {
				parts = append(parts, fmt.Sprintf("%s %d", g.Emoji, g.Count))
			}
			fmt.Printf("* reactions on %s: %s\n", ev.MessageID, strings.Join(parts, "  "))
		case neon.EventTyping:
			fmt.Printf("* %s is typing...\n", ev.Username)
		}
	}
	fmt.Println("* disconnected")
}

func usage() {
	fmt.Println(`NeonChat CLI - end-to-end encrypted room chat

Usage: neon <command> [options]

Commands:
  create <username>                 Create a room and chat in it
  join <room> <username>            Join a room and chat in it
  register <alias>                  Register an alias
  check <alias>                     Check whether an alias is taken
  plan <alias>                      Show an alias's subscription plan
  upgrade <alias> <amount> [email]  Start a Pro checkout
  health                            Check relay health

In a room:
  /react <id> <emoji>    React to a message
  /unreact <id> <emoji>  Withdraw a reaction
  /leave                 Leave the room
  /quit                  Disconnect

Environment:
  NEON_URL            Relay URL (default: http://localhost:8080)
  NEON_ROOM_PASSWORD  Room password (prompted when unset)
  NEON_RECOVERY_KEY   Recovery key for upgrade`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
