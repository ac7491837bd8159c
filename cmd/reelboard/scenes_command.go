package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelboard/internal/api"
)

func newScenesCommand(ctx *commandContext) *cobra.Command {
	scenesCmd := &cobra.Command{
		Use:   "scenes",
		Short: "Inspect and manage storyboard scenes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenesList(ctx, cmd)
		},
	}

	scenesCmd.AddCommand(newScenesAddCommand(ctx))
	scenesCmd.AddCommand(newScenesRemoveCommand(ctx))
	scenesCmd.AddCommand(newScenesGenerateCommand(ctx))
	scenesCmd.AddCommand(newScenesEnhanceCommand(ctx))
	scenesCmd.AddCommand(newScenesMoveCommand(ctx))
	scenesCmd.AddCommand(newScenesResetCommand(ctx))

	return scenesCmd
}

func runScenesList(ctx *commandContext, cmd *cobra.Command) error {
	client, err := ctx.daemonClient()
	if err != nil {
		return err
	}
	scenes, err := client.scenes(cmd.Context())
	if err != nil {
		return err
	}
	if len(scenes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Board is empty.")
		return nil
	}

	title := cases.Title(language.Und)
	rows := make([][]string, 0, len(scenes))
	for i, sc := range scenes {
		detail := ""
		if sc.FailureReason != "" {
			detail = truncate(sc.FailureReason, 40)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			shortID(sc.ID),
			truncate(sc.Prompt, 48),
			sc.FrameMode,
			sc.AspectRatio,
			title.String(sc.Status),
			detail,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"#", "ID", "Prompt", "Mode", "Ratio", "Status", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	))
	return nil
}

func newScenesAddCommand(ctx *commandContext) *cobra.Command {
	var frameMode, aspectRatio, primaryImage, firstFrame, lastFrame string
	var characterIDs []string

	cmd := &cobra.Command{
		Use:   "add <prompt>",
		Short: "Add a scene to the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			view, err := client.createScene(cmd.Context(), api.CreateSceneRequest{
				Prompt:          args[0],
				FrameMode:       frameMode,
				AspectRatio:     aspectRatio,
				PrimaryImage:    primaryImage,
				FirstFrameImage: firstFrame,
				LastFrameImage:  lastFrame,
				CharacterIDs:    characterIDs,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added scene %s\n", view.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&frameMode, "mode", "", "Frame mode (single, start-only, end-only, interpolation)")
	cmd.Flags().StringVar(&aspectRatio, "ratio", "", "Aspect ratio (e.g. 16:9)")
	cmd.Flags().StringVar(&primaryImage, "image", "", "Primary reference image path")
	cmd.Flags().StringVar(&firstFrame, "first-frame", "", "First frame image path")
	cmd.Flags().StringVar(&lastFrame, "last-frame", "", "Last frame image path")
	cmd.Flags().StringSliceVar(&characterIDs, "character", nil, "Linked character id (repeatable, max 3)")

	return cmd
}

func newScenesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <scene-id>",
		Short: "Remove a scene and release its assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			if err := client.deleteScene(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed scene %s\n", args[0])
			return nil
		},
	}
}

func newScenesGenerateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <scene-id>",
		Short: "Submit a generation job for a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			view, err := client.generateScene(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generation started for scene %s (status: %s)\n", view.ID, view.Status)
			return nil
		},
	}
}

func newScenesEnhanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enhance <scene-id>",
		Short: "Rewrite a scene's prompt with the text model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			view, err := client.enhanceScene(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enhanced prompt:\n%s\n", view.Prompt)
			return nil
		},
	}
}

func newScenesMoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Move a scene between board positions (1-based)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[0])
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[1])
			}
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			if _, err := client.reorderScenes(cmd.Context(), from-1, to-1); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved scene from position %d to %d\n", from, to)
			return nil
		},
	}
}

func newScenesResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <scene-id>",
		Short: "Return a scene to idle, keeping its prompt and images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			view, err := client.resetScene(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scene %s reset (status: %s)\n", view.ID, view.Status)
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
