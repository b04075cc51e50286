package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8000", "chat server websocket base address")
	topic := flag.String("topic", "general", "topic to join")
	token := flag.String("token", "token", "credential sent as ?token=")
	user := flag.String("user", "tester", "username placed in the envelope")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	target := fmt.Sprintf("%s/ws/chat/%s?token=%s", *addr, url.PathEscape(*topic), url.QueryEscape(*token))
	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.NewChat(*text, *user)); err != nil {
		log.Fatalf("send: %v", err)
	}

	for {
		var in proto.Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			log.Fatalf("read: %v", err)
		}
		fmt.Printf("Received: user=%s message=%q\n", in.User, in.Message)
		if in.User == *user && in.Message == *text {
			fmt.Println("echo ok")
			return
		}
	}
}
