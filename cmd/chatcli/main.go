package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"chatsync/internal/chat"
	"chatsync/internal/config"
	"chatsync/internal/domain"
	"chatsync/internal/presence"
	"chatsync/internal/store"
	"chatsync/internal/uploads"
	"chatsync/pkg/logger"
)

// chatcli is a terminal client built directly on the sync core. It talks to
// the same Postgres documents the API server does, so a chatcli session and
// an API client see each other live.
func main() {
	userID := flag.String("user", "", "user id (generated when empty)")
	name := flag.String("name", "", "display name (required)")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: chatcli -name <display name> [-user <id>]")
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	l := logger.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connecting to postgres: %v", err)
	}
	defer pool.Close()

	st := store.NewPostgres(pool, store.NewMemoryNotifier(), l)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensuring schema: %v", err)
	}

	me := domain.User{ID: *userID, Name: *name, IsCurrentUser: true}
	if me.ID == "" {
		me.ID = uuid.NewString()
	}
	if err := st.PutUser(ctx, store.UserRecord{ID: me.ID, Name: me.Name}); err != nil {
		log.Fatalf("registering user: %v", err)
	}

	session := domain.Session{User: me}
	tracker := presence.NewMemory()
	orchestrator := uploads.NewOrchestrator(uploads.NewMemoryUploader(), l)

	directory := chat.NewDirectory(st, session, l)
	if err := directory.Start(ctx); err != nil {
		log.Fatalf("starting directory: %v", err)
	}
	defer directory.Close()

	deps := chat.Deps{
		Store:          st,
		Uploads:        orchestrator,
		Presence:       tracker,
		Directory:      directory,
		Lifecycle:      chat.NewLifecycle(st, session, l),
		Session:        session,
		Log:            l,
		TypingInterval: cfg.Typing.DebounceInterval,
	}

	fmt.Printf("signed in as %s (%s)\n", me.Name, me.ID)
	fmt.Println("commands: /users /convs /open <user-id> /send <text> /retry <msg-id> /read /close /quit")

	repl(ctx, deps, directory, me)
}

func repl(ctx context.Context, deps chat.Deps, directory *chat.Directory, me domain.User) {
	var engine *chat.Engine
	defer func() {
		if engine != nil {
			engine.Close()
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/quit":
			return

		case "/users":
			for _, u := range directory.Users() {
				fmt.Printf("  %s  %s\n", u.ID, u.Name)
			}

		case "/convs":
			for _, conv := range directory.Conversations() {
				line := fmt.Sprintf("  %s  %s", conv.ID, conv.DisplayTitle(me.ID))
				if n := conv.UnreadFor(me.ID); n > 0 {
					line += fmt.Sprintf("  (%d unread)", n)
				}
				if conv.LatestMessage != nil {
					preview := conv.LatestMessage.Text
					if preview == "" {
						preview = conv.LatestMessage.Subtext
					}
					line += "  | " + preview
				}
				fmt.Println(line)
			}

		case "/open":
			if engine != nil {
				engine.Close()
				engine = nil
			}
			peer, ok := directory.UserByID(arg)
			if !ok {
				fmt.Println("unknown user", arg)
				continue
			}
			e, err := chat.NewEngineForUser(ctx, deps, peer)
			if err != nil {
				fmt.Println("open failed:", err)
				continue
			}
			engine = e
			go printUpdates(e)
			fmt.Println("opened conversation with", peer.Name)

		case "/send":
			if engine == nil {
				fmt.Println("no open conversation")
				continue
			}
			engine.UserIsTyping(arg)
			id := engine.Send(ctx, domain.DraftMessage{Text: arg})
			fmt.Println("sending", id)

		case "/retry":
			if engine == nil {
				fmt.Println("no open conversation")
				continue
			}
			id, err := engine.Retry(ctx, arg)
			if err != nil {
				fmt.Println("retry failed:", err)
				continue
			}
			fmt.Println("retrying as", id)

		case "/read":
			if engine == nil {
				fmt.Println("no open conversation")
				continue
			}
			if err := engine.ResetUnread(ctx); err != nil {
				fmt.Println("read failed:", err)
			}

		case "/close":
			if engine != nil {
				if err := engine.ResetUnread(ctx); err != nil {
					fmt.Println("read failed:", err)
				}
				engine.Close()
				engine = nil
				fmt.Println("closed")
			}

		default:
			fmt.Println("unknown command", cmd)
		}
	}
}

func printUpdates(engine *chat.Engine) {
	for messages := range engine.Updates() {
		fmt.Printf("\n-- %d messages --\n", len(messages))
		for _, msg := range messages {
			marker := " "
			switch msg.Status {
			case domain.StatusSending:
				marker = "…"
			case domain.StatusError:
				marker = "!"
			}
			body := msg.Text
			if body == "" {
				body = msg.Subtext()
			}
			fmt.Printf("%s [%s] %s: %s\n", marker, msg.CreatedAt.Format("15:04:05"), msg.UserID, body)
		}
		fmt.Print("> ")
	}
}
