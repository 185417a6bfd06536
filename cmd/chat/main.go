// Command chat is a line-oriented terminal client for one conversation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pinchat/backend/internal/chatclient"
	"pinchat/backend/internal/logging"
	"pinchat/backend/internal/msgcrypto"
	"pinchat/backend/internal/protocol"

	"go.uber.org/zap"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Base URL of the pinchat backend")
	token := flag.String("token", os.Getenv("PINCHAT_TOKEN"), "Bearer token (defaults to $PINCHAT_TOKEN)")
	self := flag.String("self", "", "Your user ID (the token subject)")
	peer := flag.String("peer", "", "User ID to chat with")
	secret := flag.String("secret", os.Getenv("PINCHAT_CRYPTO_SECRET"), "Shared message secret")
	level := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	if *token == "" || *self == "" || *peer == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logging.NewLogger(*level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	codec, err := msgcrypto.NewCodec(*secret)
	if err != nil {
		log.Fatal("init message codec", zap.Error(err))
	}

	rest := chatclient.NewRESTClient(*server, *token)
	live, err := chatclient.DialLive(*server, *token, log.Named("live"))
	if err != nil {
		log.Fatal("connect live channel", zap.Error(err))
	}
	defer live.Close()

	session := chatclient.NewSession(*self, *peer, rest, live, codec, chatclient.Options{Log: log.Named("session")})
	live.OnEvent(session.HandleEvent)
	live.OnEvent(func(ev protocol.Outbound) { render(session, ev) })
	live.OnClose(func(err error) {
		session.SetConnected(false)
		fmt.Println("* disconnected")
	})
	live.Listen()

	if err := live.Emit(protocol.ComeOnline{UserID: *self}); err != nil {
		log.Fatal("announce presence", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Open(ctx); err != nil {
		log.Fatal("load history", zap.Error(err))
	}
	for _, e := range session.Messages() {
		printEntry(*self, e)
	}
	fmt.Printf("* %s | /status /history /quit\n", session.PresenceLabel())

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			session.Close()
			return
		case <-live.Done():
			return
		case line, ok := <-lines:
			if !ok {
				session.Close()
				return
			}
			if !handleLine(ctx, session, *self, line) {
				session.Close()
				return
			}
		}
	}
}

// handleLine returns false when the user asked to quit.
func handleLine(ctx context.Context, session *chatclient.Session, self, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return true
	case "/quit":
		return false
	case "/status":
		fmt.Printf("* %s\n", session.PresenceLabel())
		return true
	case "/history":
		for _, e := range session.Messages() {
			printEntry(self, e)
		}
		return true
	}

	session.Keystroke()
	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := session.Send(sendCtx, line); err != nil {
		fmt.Printf("! not sent: %v\n", err)
	}
	return true
}

func render(session *chatclient.Session, ev protocol.Outbound) {
	switch e := ev.(type) {
	case protocol.MessageArrived:
		if e.Message.SenderID == session.PeerID {
			for _, entry := range session.Messages() {
				if entry.ID == e.Message.ID {
					printEntry(session.SelfID, entry)
				}
			}
		}
	case protocol.PeerTyping:
		if e.UserID == session.PeerID && e.IsTyping {
			fmt.Printf("* %s is typing...\n", session.PeerID)
		}
	case protocol.PeerOnline, protocol.PeerOffline:
		fmt.Printf("* %s\n", session.PresenceLabel())
	case protocol.ReadReceiptsUpdated:
		if e.ReaderID == session.PeerID {
			fmt.Println("* seen")
		}
	case protocol.MessageDeleted:
		fmt.Printf("* message %s deleted\n", e.MessageID)
	}
}

func printEntry(self string, e chatclient.Entry) {
	who := e.SenderID
	if e.SenderID == self {
		who = "you"
	}
	text := e.Text
	if e.Unreadable {
		text = "[unreadable]"
	}
	fmt.Printf("[%s] %s: %s\n", e.CreatedAt.Local().Format("15:04"), who, text)
}
