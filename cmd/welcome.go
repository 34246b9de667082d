package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/welcome"
)

var welcomeCmd = &cobra.Command{
	Use:   "welcome",
	Short: "Send a welcome message to a community subscriber",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("welcome"); err != nil {
			return err
		}

		req, err := welcomeRequestFromFlags(cmd)
		if err != nil {
			return err
		}

		svc, err := newWelcome(cfg.VK)
		if err != nil {
			return err
		}

		res, err := svc.Send(cmd.Context(), req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func welcomeRequestFromFlags(cmd *cobra.Command) (welcome.Request, error) {
	user, _ := cmd.Flags().GetString("user")
	group, _ := cmd.Flags().GetString("group")
	answersPath, _ := cmd.Flags().GetString("answers")

	req := welcome.Request{
		UserID:  model.FlexString(user),
		GroupID: model.FlexString(group),
	}
	if answersPath == "" {
		return req, nil
	}

	data, err := os.ReadFile(answersPath)
	if err != nil {
		return req, eris.Wrap(err, "read answers")
	}
	if err := json.Unmarshal(data, &req.Answers); err != nil {
		return req, eris.Wrap(err, "decode answers")
	}
	return req, nil
}

func init() {
	welcomeCmd.Flags().String("user", "", "recipient user id")
	welcomeCmd.Flags().String("group", "", "community id")
	welcomeCmd.Flags().String("answers", "", "JSON file with quiz answers to include")
	rootCmd.AddCommand(welcomeCmd)
}
