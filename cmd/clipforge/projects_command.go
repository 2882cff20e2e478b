package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-go/internal/api"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "Inspect clipping projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	projectsCmd.AddCommand(newProjectsListCommand(ctx))
	projectsCmd.AddCommand(newProjectsShowCommand(ctx))

	return projectsCmd
}

func newProjectsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your clipping projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			projects, err := client.ListProjects(cmd.Context())
			if err != nil {
				return err
			}

			if ctx.jsonMode() {
				return writeJSON(cmd, projects)
			}

			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPROGRESS\tCLIPS\tCREATED")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%d\t%s\n",
					p.ID, p.Title, p.Status, p.Progress, p.ClipCount,
					p.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newProjectsShowCommand(ctx *commandContext) *cobra.Command {
	var withClips bool

	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show one project, optionally with its clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			project, err := client.GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var clips []api.Clip
			if withClips {
				clips, err = client.ListClips(cmd.Context(), project.ID)
				if err != nil {
					return err
				}
			}

			if ctx.jsonMode() {
				return writeJSON(cmd, struct {
					Project *api.Project `json:"project"`
					Clips   []api.Clip   `json:"clips,omitempty"`
				}{Project: project, Clips: clips})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID: %s\n", project.ID)
			fmt.Fprintf(out, "Title: %s\n", project.Title)
			fmt.Fprintf(out, "Source: %s\n", project.SourceURL)
			fmt.Fprintf(out, "Status: %s\n", project.Status)
			fmt.Fprintf(out, "Progress: %.0f%%\n", project.Progress)
			if project.CurrentStep != "" {
				fmt.Fprintf(out, "Current step: %s\n", project.CurrentStep)
			}
			fmt.Fprintf(out, "Clips: %d\n", project.ClipCount)
			fmt.Fprintf(out, "Created: %s\n", project.CreatedAt.Format(time.RFC3339))

			if withClips {
				if len(clips) == 0 {
					fmt.Fprintln(out, "No clips yet")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CLIP\tTITLE\tSCORE\tRANGE")
				for _, clip := range clips {
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%s - %s\n",
						clip.ID, clip.Title, clip.ViralScore,
						formatMs(clip.StartMs), formatMs(clip.EndMs))
				}
				return w.Flush()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withClips, "clips", false, "Include the project's clips")
	return cmd
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return d.Truncate(time.Second).String()
}
