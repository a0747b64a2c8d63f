package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"sessionsync/internal/mock"
	"sessionsync/internal/tui"
	"sessionsync/projection"
	"sessionsync/sdk/agent"
)

func main() {
	app := &cli.App{
		Name:  "sessionsync",
		Usage: "Sync and watch agent sessions over their event stream",
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "Follow a session in a terminal viewer",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "backend",
						Usage:   "Agent server URL",
						Value:   "http://localhost:8000",
						EnvVars: []string{"BACKEND_URL"},
					},
					&cli.StringFlag{
						Name:  "session",
						Usage: "Session ID to watch (defaults to the most recent session)",
					},
				},
				Action: runWatch,
			},
			{
				Name:  "mock",
				Usage: "Run a demo agent server with a scripted conversation",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "Port to listen on",
						Value: 8000,
					},
				},
				Action: func(c *cli.Context) error {
					return mock.NewServer(c.Int("port")).Start()
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runWatch(c *cli.Context) error {
	logger := agent.NewLoggerFromEnv()
	agent.SetLogger(logger)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	client := agent.NewClient(c.String("backend"),
		agent.WithDirectory(cwd),
		agent.WithTimeout(60*time.Second),
		agent.WithLogger(logger),
	)

	ctx := context.Background()

	sessionID := c.String("session")
	if sessionID == "" {
		sessionID, err = pickSession(ctx, client)
		if err != nil {
			return err
		}
	}

	syncer := projection.NewSyncer(client, projection.WithLogger(logger))
	sub := syncer.Subscribe(ctx, sessionID)
	defer sub.Close()

	p := tea.NewProgram(tui.New(sub, client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

// pickSession chooses the most recently updated non-child session.
func pickSession(ctx context.Context, client *agent.Client) (string, error) {
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}

	var best *agent.Session
	for i := range sessions {
		s := &sessions[i]
		if s.IsChild() {
			continue
		}
		if best == nil || s.Time.Updated > best.Time.Updated {
			best = s
		}
	}
	if best == nil {
		return "", fmt.Errorf("no sessions on the server; pass --session or start one first")
	}
	return best.ID, nil
}
