package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (c *cli) askCommand() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send a single message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.environment()
			if err != nil {
				return err
			}
			defer e.close()
			a, err := c.newApp(e)
			if err != nil {
				return err
			}
			defer a.close()

			reply := a.companion.Handle(cmd.Context(), sessionID, strings.Join(args, " "))
			if c.jsonOutput() {
				return c.printJSON(reply)
			}
			fmt.Fprintln(c.stdout, reply.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "cli", "session id")
	return cmd
}

func (c *cli) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively; /quit or EOF ends the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.environment()
			if err != nil {
				return err
			}
			defer e.close()
			a, err := c.newApp(e)
			if err != nil {
				return err
			}
			defer a.close()

			sessionID := "cli-" + uuid.New().String()
			in := bufio.NewScanner(c.stdin)
			fmt.Fprintln(c.stdout, "How are you feeling? (/quit to exit)")
			for {
				fmt.Fprint(c.stdout, "> ")
				if !in.Scan() {
					fmt.Fprintln(c.stdout)
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				}

				reply := a.companion.Handle(cmd.Context(), sessionID, line)
				fmt.Fprintf(c.stdout, "%s\n\n", reply.Text)
				if cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}
			}
		},
	}
}
