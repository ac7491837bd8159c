package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reelboard/internal/api"
)

func newCharactersCommand(ctx *commandContext) *cobra.Command {
	charactersCmd := &cobra.Command{
		Use:     "characters",
		Aliases: []string{"chars"},
		Short:   "Manage the character library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCharactersList(ctx, cmd, "")
		},
	}

	charactersCmd.AddCommand(newCharactersSearchCommand(ctx))
	charactersCmd.AddCommand(newCharactersAddCommand(ctx))
	charactersCmd.AddCommand(newCharactersRemoveCommand(ctx))

	return charactersCmd
}

func runCharactersList(ctx *commandContext, cmd *cobra.Command, query string) error {
	client, err := ctx.daemonClient()
	if err != nil {
		return err
	}
	list, err := client.characters(cmd.Context(), query)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No characters found.")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, ch := range list {
		rows = append(rows, []string{
			shortID(ch.ID),
			ch.Name,
			truncate(ch.Description, 48),
			strconv.Itoa(ch.ImageCount),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Name", "Description", "Images"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
	return nil
}

func newCharactersSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search characters by name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCharactersList(ctx, cmd, args[0])
		},
	}
}

func newCharactersAddCommand(ctx *commandContext) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a character to the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			view, err := client.createCharacter(cmd.Context(), api.CharacterRequest{
				Name:        args[0],
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added character %s (%s)\n", view.Name, view.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Character description")
	return cmd
}

func newCharactersRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <character-id>",
		Short: "Remove a character from the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			if err := client.deleteCharacter(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed character %s\n", args[0])
			return nil
		},
	}
}
