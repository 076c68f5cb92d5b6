// batepapo CLI - command line client for the batepapo chat room
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/eldtechnologies/batepapo/clients/go/batepapo"
)

// keepAliveInterval stays well under the server's inactivity timeout.
const keepAliveInterval = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("BATEPAPO_URL")
	client := batepapo.NewClient(baseURL)
	cmd := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "join":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: batepapo join <name>")
			os.Exit(1)
		}
		resp, err := client.Register(ctx, os.Args[2])
		exitOnError(err)
		fmt.Printf("Joined as: %s\n", resp.Name)
		exitOnError(stayOnline(ctx, client))

	case "say":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: batepapo say <to> <text> [private]")
			os.Exit(1)
		}
		private := len(os.Args) > 4 && os.Args[4] == "private"
		resp, err := client.PostMessage(ctx, os.Args[2], os.Args[3], private)
		exitOnError(err)
		fmt.Printf("Posted: %s\n", resp.ID)

	case "read":
		limit := 20
		if len(os.Args) > 2 {
			n, err := strconv.Atoi(os.Args[2])
			exitOnError(err)
			limit = n
		}
		msgs, err := client.GetMessages(ctx, limit)
		exitOnError(err)
		for _, msg := range msgs {
			printMessage(msg)
		}

	case "who":
		participants, err := client.ListParticipants(ctx)
		exitOnError(err)
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Name", "Last seen"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		for _, p := range participants {
			table.Append([]string{p.Name, p.LastActivity().Format("15:04:05")})
		}
		table.Render()

	case "rm":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: batepapo rm <message_id>")
			os.Exit(1)
		}
		exitOnError(client.DeleteMessage(ctx, os.Args[2]))
		fmt.Printf("Deleted: %s\n", os.Args[2])

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// stayOnline sends keep-alives and prints new messages until ctx is done.
func stayOnline(ctx context.Context, client *batepapo.Client) error {
	seen := make(map[string]bool)
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		msgs, err := client.GetMessages(ctx, 0)
		if err != nil && ctx.Err() == nil {
			return err
		}
		for _, msg := range msgs {
			if !seen[msg.ID] {
				seen[msg.ID] = true
				printMessage(msg)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := client.KeepAlive(ctx); err != nil && ctx.Err() == nil {
			return err
		}
	}
}

func printMessage(msg batepapo.Message) {
	switch msg.Type {
	case "status":
		fmt.Println(color.New(color.FgGray).Render(fmt.Sprintf("(%s) %s %s", msg.Time, msg.From, msg.Text)))
	case "private_message":
		line := fmt.Sprintf("(%s) %s privately to %s: %s", msg.Time, msg.From, msg.To, msg.Text)
		fmt.Printf("%s  [%s]\n", color.New(color.FgMagenta).Render(line), msg.ID)
	default:
		fmt.Printf("(%s) %s to %s: %s  [%s]\n", msg.Time, msg.From, msg.To, msg.Text, msg.ID)
	}
}

func usage() {
	fmt.Println(`batepapo CLI - chat room client

Usage: batepapo <command> [options]

Commands:
  join <name>                 Join the room and stay online
  say <to> <text> [private]   Post a message (to "Todos" for everyone)
  read [limit]                Read visible messages
  who                         List participants
  rm <message_id>             Delete one of your messages
  health                      Check server health

Environment:
  BATEPAPO_URL      Server URL (default: http://localhost:5000)
  BATEPAPO_CONFIG   Config directory (default: ~/.batepapo)`)
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
