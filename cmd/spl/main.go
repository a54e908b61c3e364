package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintline/internal/app"
	"sprintline/internal/config"
	"sprintline/internal/db"
	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/migrate"
	"sprintline/internal/repo"
	"sprintline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "spl",
	Short: "Sprintline CLI",
	Long: `Sprintline is an Agile backlog and sprint tracker.
- Workspace: the .sprintline directory holding the database; project config lives in the DB.
- Work items: a four-level hierarchy (epic > feature > user story > task; tasks may nest under tasks).
- Board: items move backlog -> todo -> in_progress -> in_review -> done; cancelled is an exit, restorable to backlog.
- Sprints: planning -> active -> completed (or cancelled); user stories and tasks join a sprint backlog.
- Analytics: per-sprint burndown and per-project velocity with a rolling average.
- Retrospectives: one per sprint, with ordered action items.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPRINTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(retroCmd())
	rootCmd.AddCommand(resourceCmd())
	rootCmd.AddCommand(velocityCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectUseCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Priority"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.Priority})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			return withEngineNoProject(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when omitted)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "project status")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "project priority")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, status, priority string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ProjectUpdateOptions{ID: e.Config.Project.ID}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&status, "status", "", "project status")
	cmd.Flags().StringVar(&priority, "priority", "", "project priority")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngineNoProject(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProject(ctx, args[0])
			})
		},
	}
	return cmd
}

func projectUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set the workspace default project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := strings.TrimSpace(args[0])
			if projectID == "" {
				return fmt.Errorf("project id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "SPRINTLINE_PROJECT", projectID); err != nil {
				return err
			}
			fmt.Printf("Set SPRINTLINE_PROJECT=%s in %s/.env\n", projectID, workspace)
			return nil
		},
	}
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Project configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Config)
			})
		},
	})
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import config YAML into the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.UpsertProjectConfig(ctx, cfg.Project.ID, cfg)
			})
		},
	}
	importCmd.Flags().String("file", config.Path("."), "config file path")
	cfgCmd.AddCommand(importCmd)
	return cfgCmd
}

// --- work items ---

func itemCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "item", Short: "Manage work items"}
	cmd.AddCommand(itemAddCmd())
	cmd.AddCommand(itemListCmd())
	cmd.AddCommand(itemShowCmd())
	cmd.AddCommand(itemUpdateCmd())
	cmd.AddCommand(itemStatusCmd())
	cmd.AddCommand(itemDeleteCmd())
	cmd.AddCommand(itemTreeCmd())
	return cmd
}

func itemAddCmd() *cobra.Command {
	var opts engine.WorkItemCreateOptions
	var parent, sprint, assignee string
	var effort float64
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Title = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ProjectID = e.Config.Project.ID
				opts.ParentID = optionalString(parent)
				opts.SprintID = optionalString(sprint)
				opts.AssigneeID = optionalString(assignee)
				if cmd.Flags().Changed("effort") {
					opts.EffortEstimate = &effort
				}
				w, err := e.CreateWorkItem(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", "task", "epic|feature|user_story|task")
	cmd.Flags().StringVar(&parent, "parent", "", "parent work item id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.AcceptanceCriteria, "acceptance-criteria", "", "acceptance criteria")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority")
	cmd.Flags().Float64Var(&effort, "effort", 0, "effort estimate")
	cmd.Flags().StringVar(&opts.EffortUnit, "effort-unit", "", "story_points|hours")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee resource id")
	cmd.Flags().StringVar(&sprint, "sprint", "", "sprint id")
	return cmd
}

func itemListCmd() *cobra.Command {
	var f repo.WorkItemFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.ProjectID == "" {
					f.ProjectID = e.Config.Project.ID
				}
				items, err := e.Repo.ListWorkItems(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Status", "Effort", "Sprint"})
				for _, w := range items {
					effort := ""
					if w.EffortEstimate != nil {
						effort = fmt.Sprintf("%g %s", *w.EffortEstimate, w.EffortUnit)
					}
					sprint := ""
					if w.SprintID != nil {
						sprint = *w.SprintID
					}
					tw.AppendRow(table.Row{w.ID, w.Type, w.Title, w.Status, effort, sprint})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "parent filter")
	cmd.Flags().StringVar(&f.SprintID, "sprint", "", "sprint filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.Search, "search", "", "substring search over title and description")
	return cmd
}

func itemShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work item with its rollup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.Repo.GetWorkItem(ctx, args[0])
				if err != nil {
					return err
				}
				summary, err := e.Rollup(ctx, w.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"item": w, "rollup": summary})
			})
		},
	}
	return cmd
}

func itemUpdateCmd() *cobra.Command {
	var title, description, status, priority, unit, parent, sprint, assignee, updatedAt string
	var effort float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.WorkItemUpdateOptions{ID: args[0], ExpectedUpdatedAt: updatedAt}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				if cmd.Flags().Changed("effort") {
					opts.EffortEstimate = &effort
				}
				if cmd.Flags().Changed("effort-unit") {
					opts.EffortUnit = &unit
				}
				if cmd.Flags().Changed("parent") {
					opts.SetParent = &parent
				}
				if cmd.Flags().Changed("sprint") {
					opts.SetSprint = &sprint
				}
				if cmd.Flags().Changed("assignee") {
					opts.AssigneeID = &assignee
				}
				w, err := e.UpdateWorkItem(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().Float64Var(&effort, "effort", 0, "effort estimate")
	cmd.Flags().StringVar(&unit, "effort-unit", "", "story_points|hours")
	cmd.Flags().StringVar(&parent, "parent", "", "new parent id (empty detaches nothing; epics only)")
	cmd.Flags().StringVar(&sprint, "sprint", "", "sprint id (empty unassigns)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee resource id (empty unassigns)")
	cmd.Flags().StringVar(&updatedAt, "expect-updated-at", "", "reject if the item changed since this timestamp")
	return cmd
}

func itemStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a work item on the board",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.SetWorkItemStatus(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func itemDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a work item and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.DeleteWorkItem(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("deleted %d item(s)\n", n)
				return nil
			})
		},
	}
	return cmd
}

func itemTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <id>",
		Short: "Print a work item subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				root, err := e.Repo.GetWorkItem(ctx, args[0])
				if err != nil {
					return err
				}
				descendants, err := e.Descendants(ctx, root.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(append([]domain.WorkItem{root}, descendants...))
				}
				children := map[string][]domain.WorkItem{}
				for _, w := range descendants {
					if w.ParentID != nil {
						children[*w.ParentID] = append(children[*w.ParentID], w)
					}
				}
				fmt.Printf("%s [%s]\n", root.Title, root.Status)
				for i, c := range children[root.ID] {
					printItemTree(c, children, "", i == len(children[root.ID])-1)
				}
				return nil
			})
		},
	}
	return cmd
}

// --- sprints ---

func sprintCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sprint", Short: "Manage sprints"}
	cmd.AddCommand(sprintAddCmd())
	cmd.AddCommand(sprintListCmd())
	cmd.AddCommand(sprintShowCmd())
	cmd.AddCommand(sprintUpdateCmd())
	cmd.AddCommand(sprintDeleteCmd())
	cmd.AddCommand(sprintBacklogCmd())
	cmd.AddCommand(sprintBurndownCmd())
	return cmd
}

func sprintAddCmd() *cobra.Command {
	var opts engine.SprintCreateOptions
	var planned float64
	var stage string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ProjectID = e.Config.Project.ID
				if cmd.Flags().Changed("planned-velocity") {
					opts.PlannedVelocity = &planned
				}
				if cmd.Flags().Changed("stage") {
					opts.StageID = &stage
				}
				s, err := e.CreateSprint(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Goal, "goal", "", "sprint goal")
	cmd.Flags().StringVar(&stage, "stage", "", "governance stage reference")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "end date YYYY-MM-DD")
	cmd.Flags().Float64Var(&planned, "planned-velocity", 0, "planned velocity in story points")
	return cmd
}

func sprintListCmd() *cobra.Command {
	var f repo.SprintFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.ProjectID == "" {
					f.ProjectID = e.Config.Project.ID
				}
				sprints, err := e.Repo.ListSprints(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sprints)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Start", "End", "Planned"})
				for _, s := range sprints {
					tw.AppendRow(table.Row{s.ID, s.Name, s.Status, s.StartDate, s.EndDate, s.PlannedVelocity})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Search, "search", "", "substring search over name and goal")
	return cmd
}

func sprintShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a sprint with its metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetSprint(ctx, args[0])
				if err != nil {
					return err
				}
				m, err := e.SprintMetrics(ctx, s.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"sprint": s, "metrics": m})
			})
		},
	}
	return cmd
}

func sprintUpdateCmd() *cobra.Command {
	var name, goal, stage, start, end, status string
	var planned float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.SprintUpdateOptions{ID: args[0]}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("goal") {
					opts.Goal = &goal
				}
				if cmd.Flags().Changed("stage") {
					opts.StageID = &stage
				}
				if cmd.Flags().Changed("start") {
					opts.StartDate = &start
				}
				if cmd.Flags().Changed("end") {
					opts.EndDate = &end
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("planned-velocity") {
					opts.PlannedVelocity = &planned
				}
				s, err := e.UpdateSprint(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "sprint name")
	cmd.Flags().StringVar(&goal, "goal", "", "sprint goal")
	cmd.Flags().StringVar(&stage, "stage", "", "governance stage reference, empty clears it")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	cmd.Flags().StringVar(&status, "status", "", "planning|active|completed|cancelled")
	cmd.Flags().Float64Var(&planned, "planned-velocity", 0, "planned velocity in story points")
	return cmd
}

func sprintDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a sprint, unassigning its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteSprint(ctx, args[0])
			})
		},
	}
	return cmd
}

func sprintBacklogCmd() *cobra.Command {
	backlog := &cobra.Command{Use: "backlog", Short: "Sprint backlog membership"}
	backlog.AddCommand(&cobra.Command{
		Use:   "add <sprint-id> <item-id>...",
		Short: "Add work items to the sprint backlog",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.AddToBacklog(ctx, args[0], args[1:])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	backlog.AddCommand(&cobra.Command{
		Use:   "remove <sprint-id> <item-id>",
		Short: "Remove a work item from the sprint backlog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.RemoveFromBacklog(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	})
	return backlog
}

func sprintBurndownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "burndown <id>",
		Short: "Print the sprint burndown series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				series, err := e.Burndown(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(series)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Remaining", "Ideal", "Completed"})
				for _, p := range series {
					tw.AppendRow(table.Row{p.Day, p.RemainingEffort, fmt.Sprintf("%.2f", p.IdealRemaining), p.CompletedEffort})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

// --- retrospectives ---

func retroCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "retro", Short: "Sprint retrospectives"}
	cmd.AddCommand(retroSetCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "show <sprint-id>",
		Short: "Show a sprint retrospective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.GetRetrospective(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <sprint-id>",
		Short: "Delete a sprint retrospective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteRetrospective(ctx, args[0])
			})
		},
	})
	return cmd
}

func retroSetCmd() *cobra.Command {
	var opts engine.RetrospectiveOptions
	var sentiment string
	var rating int
	var actions []string
	cmd := &cobra.Command{
		Use:   "set <sprint-id>",
		Short: "Create or replace a sprint retrospective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SprintID = args[0]
			if cmd.Flags().Changed("sentiment") {
				opts.TeamSentiment = &sentiment
			}
			if cmd.Flags().Changed("rating") {
				opts.SprintRating = &rating
			}
			for _, a := range actions {
				opts.ActionItems = append(opts.ActionItems, domain.ActionItem{Item: a, Status: "pending"})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.UpsertRetrospective(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&opts.RetrospectiveDate, "date", "", "retrospective date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.WhatWentWell, "went-well", "", "what went well")
	cmd.Flags().StringVar(&opts.WhatCouldBeImproved, "improve", "", "what could be improved")
	cmd.Flags().StringVar(&sentiment, "sentiment", "", "team sentiment")
	cmd.Flags().IntVar(&rating, "rating", 0, "sprint rating 1-5")
	cmd.Flags().StringArrayVar(&actions, "action", nil, "action item (repeatable, order preserved)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
	return cmd
}

// --- resources ---

func resourceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "resource", Short: "Manage resources"}
	addCmd := &cobra.Command{
		Use:   "add <name> <email>",
		Short: "Create resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			return withEngineNoProject(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateResource(ctx, engine.ResourceOptions{
					Name:  args[0],
					Email: args[1],
					Role:  role,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	addCmd.Flags().String("role", "", "resource role")
	cmd.AddCommand(addCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				resources, err := r.ListResources(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(resources)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Status"})
				for _, res := range resources {
					tw.AppendRow(table.Row{res.ID, res.Name, res.Email, res.Role, res.Status})
				}
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				res, err := r.GetResource(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	})
	return cmd
}

// --- velocity ---

func velocityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "velocity",
		Short: "Project velocity report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Velocity(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Sprint", "Start", "Status", "Planned", "Actual", "Rolling Avg"})
				for _, row := range report.Sprints {
					tw.AppendRow(table.Row{row.SprintName, row.StartDate, row.Status, row.Planned, row.Actual, fmt.Sprintf("%.2f", row.RollingAvg)})
				}
				tw.Render()
				fmt.Printf("avg planned %.2f, avg actual %.2f, latest rolling avg %.2f\n",
					report.AvgPlanned, report.AvgActual, report.LatestRollingAvg)
				return nil
			})
		},
	}
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), viper.GetString("project"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Sprintline API on http://%s%s (db %s, OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath, db.Path(workspace))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveProjectAndConfig(ctx, viper.GetString("project"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

// withEngineNoProject opens the database without resolving an active
// project; used by commands that operate across projects.
func withEngineNoProject(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	e := engine.New(conn, config.Default("default"))
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printItemTree(w domain.WorkItem, children map[string][]domain.WorkItem, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s%s [%s]\n", prefix, connector, w.Title, w.Status)
	for i, c := range children[w.ID] {
		printItemTree(c, children, newPrefix, i == len(children[w.ID])-1)
	}
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
